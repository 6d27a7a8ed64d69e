package middlewares

import (
	"context"
	"log/slog"
	"time"

	"github.com/haydenmc/kelvinbot/internal/core"
)

// ScheduledPostConfig configures a ScheduledPost middleware.
type ScheduledPostConfig struct {
	DestServiceID core.ServiceID
	DestRoomID    string
	Body          string
	MarkdownBody  string // empty means "same as Body"
	Interval      time.Duration
	Logger        *slog.Logger
}

// ScheduledPost is a Middleware whose only behavior lives in Run: it
// posts a fixed message to a destination room on a fixed interval,
// independent of any inbound Event. It never stops the pipeline, since
// OnEvent is a no-op observer.
type ScheduledPost struct {
	commands chan<- core.Command
	cfg      ScheduledPostConfig
}

// NewScheduledPost constructs a ScheduledPost middleware.
func NewScheduledPost(commands chan<- core.Command, cfg ScheduledPostConfig) *ScheduledPost {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MarkdownBody == "" {
		cfg.MarkdownBody = cfg.Body
	}
	return &ScheduledPost{commands: commands, cfg: cfg}
}

// Run posts cfg.Body to cfg.DestRoomID every cfg.Interval until ctx is
// cancelled. The first post happens after one interval has elapsed,
// not immediately on startup.
func (s *ScheduledPost) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.cfg.Logger.Info("scheduled post middleware running",
		"dest_service_id", s.cfg.DestServiceID, "dest_room_id", s.cfg.DestRoomID,
		"interval", s.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			s.cfg.Logger.Info("scheduled post middleware shutting down")
			return nil
		case <-ticker.C:
			s.post()
		}
	}
}

func (s *ScheduledPost) post() {
	select {
	case s.commands <- core.SendRoomMessage{
		ServiceID:    s.cfg.DestServiceID,
		RoomID:       s.cfg.DestRoomID,
		Body:         s.cfg.Body,
		MarkdownBody: s.cfg.MarkdownBody,
	}:
		s.cfg.Logger.Debug("scheduled post sent")
	default:
		s.cfg.Logger.Warn("scheduled post dropped, command channel full")
	}
}

// OnEvent implements core.Middleware. ScheduledPost is purely a
// background task; it never inspects Events.
func (s *ScheduledPost) OnEvent(core.Event) core.Verdict {
	return core.Continue
}
