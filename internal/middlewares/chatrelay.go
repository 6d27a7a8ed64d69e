package middlewares

import (
	"fmt"
	"log/slog"

	"github.com/haydenmc/kelvinbot/internal/core"
)

// ChatRelayConfig configures a ChatRelay middleware.
type ChatRelayConfig struct {
	SourceServiceID core.ServiceID
	SourceRoomID    string // empty means "no room filter"
	DestServiceID   core.ServiceID
	DestRoomID      string
	PrefixTag       string
	Logger          *slog.Logger
}

// ChatRelay forwards RoomMessage events from one source service
// (optionally filtered by room) to a destination service/room with a
// sender-preserving prefix. It is a tap: it always returns Continue.
type ChatRelay struct {
	core.NoRun
	commands chan<- core.Command
	cfg      ChatRelayConfig
}

// NewChatRelay constructs a ChatRelay middleware.
func NewChatRelay(commands chan<- core.Command, cfg ChatRelayConfig) *ChatRelay {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ChatRelay{commands: commands, cfg: cfg}
}

// OnEvent implements core.Middleware.
func (r *ChatRelay) OnEvent(event core.Event) core.Verdict {
	if event.ServiceID != r.cfg.SourceServiceID {
		return core.Continue
	}

	room, ok := event.Kind.(core.RoomMessage)
	if !ok {
		return core.Continue
	}
	if r.cfg.SourceRoomID != "" && room.RoomID != r.cfg.SourceRoomID {
		return core.Continue
	}
	if room.IsSelf {
		r.cfg.Logger.Debug("ignoring message from bot itself")
		return core.Continue
	}

	body := formatRelayedMessage(r.cfg.PrefixTag, room.SenderID, room.SenderDisplayName, room.Body)

	go func() {
		r.commands <- core.SendRoomMessage{
			ServiceID:    r.cfg.DestServiceID,
			RoomID:       r.cfg.DestRoomID,
			Body:         body,
			MarkdownBody: body,
		}
	}()

	return core.Continue
}

// formatRelayedMessage renders "[{prefixTag}] {sender}: {body}",
// preferring senderDisplayName over senderID when present.
func formatRelayedMessage(prefixTag, senderID, senderDisplayName, body string) string {
	display := senderDisplayName
	if display == "" {
		display = senderID
	}
	return fmt.Sprintf("[%s] %s: %s", prefixTag, display, body)
}
