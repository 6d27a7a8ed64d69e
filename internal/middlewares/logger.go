package middlewares

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/haydenmc/kelvinbot/internal/core"
)

// Logger records every inbound Event at Info level. UserListUpdate
// events get a dedicated summary line (usernames, self-annotation)
// rather than the generic one-line rendering, since a full roster
// dump at Event.String() density would be unreadable.
type Logger struct {
	core.NoRun
	logger *slog.Logger
}

// NewLogger constructs a Logger middleware.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// OnEvent implements core.Middleware.
func (l *Logger) OnEvent(event core.Event) core.Verdict {
	switch k := event.Kind.(type) {
	case core.UserListUpdate:
		usernames := make([]string, 0, len(k.Users))
		for _, u := range k.Users {
			name := u.Username
			if u.IsSelf {
				name += " (self)"
			}
			usernames = append(usernames, name)
		}
		l.logger.Info("user list update",
			"service_id", event.ServiceID,
			"user_count", len(k.Users),
			"users", usernames,
		)
	case core.ServiceReconnected:
		disconnectedAt := time.Now().Add(-time.Duration(k.DowntimeSecs * float64(time.Second)))
		l.logger.Info("inbound event",
			"event", event.String(),
			"down_since", humanize.Time(disconnectedAt),
		)
	default:
		l.logger.Info("inbound event", "event", event.String())
	}
	return core.Continue
}
