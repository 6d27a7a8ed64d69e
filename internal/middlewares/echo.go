// Package middlewares holds the built-in Middleware implementations:
// echo, invite, logger, chat-relay, attendance-relay (presence
// session), and scheduled-post.
package middlewares

import (
	"context"
	"log/slog"
	"strings"

	"github.com/haydenmc/kelvinbot/internal/core"
)

// Echo replies to any message whose body begins with "{command} "
// using the inverse-direction send (DM for DM, room for room), with
// the remainder of the body as the new message.
type Echo struct {
	core.NoRun
	commands chan<- core.Command
	command  string // e.g. "!echo"
	logger   *slog.Logger
}

// NewEcho constructs an Echo middleware. command is matched against
// the literal prefix "{command} " (with exactly one trailing space).
func NewEcho(commands chan<- core.Command, command string, logger *slog.Logger) *Echo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Echo{commands: commands, command: command, logger: logger}
}

// OnEvent implements core.Middleware.
func (e *Echo) OnEvent(event core.Event) core.Verdict {
	body, ok := core.MessageBody(event.Kind)
	if !ok {
		return core.Continue
	}

	prefix := e.command + " "
	rest, found := strings.CutPrefix(body, prefix)
	if !found {
		return core.Continue
	}

	var cmd core.Command
	switch k := event.Kind.(type) {
	case core.DirectMessage:
		cmd = core.SendDirectMessage{
			ServiceID: event.ServiceID,
			UserID:    k.UserID,
			Body:      rest,
			Reply:     core.NewReply[string](),
		}
	case core.RoomMessage:
		cmd = core.SendRoomMessage{
			ServiceID: event.ServiceID,
			RoomID:    k.RoomID,
			Body:      rest,
			Reply:     core.NewReply[string](),
		}
	default:
		return core.Continue
	}

	go e.send(cmd)
	return core.Continue
}

// send dispatches cmd and logs the resulting message id, solely for
// diagnostics; echo does not act on the reply otherwise.
func (e *Echo) send(cmd core.Command) {
	e.commands <- cmd

	var reply *core.Reply[string]
	switch c := cmd.(type) {
	case core.SendDirectMessage:
		reply = c.Reply
	case core.SendRoomMessage:
		reply = c.Reply
	}
	if reply == nil {
		return
	}
	id, err := reply.Await(context.Background())
	if err != nil {
		e.logger.Error("echo command failed", "error", err)
		return
	}
	e.logger.Info("processed echo command", "message_id", id)
}
