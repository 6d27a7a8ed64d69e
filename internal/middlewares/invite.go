package middlewares

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haydenmc/kelvinbot/internal/core"
)

// Invite issues registration invite tokens on request. On a
// DirectMessage whose trimmed body equals the configured command, it
// rejects non-local users outright; otherwise it asks the target
// service's admin boundary to mint a token and reports the result (or
// failure) back to the requester.
type Invite struct {
	core.NoRun
	commands chan<- core.Command
	command  string
	uses     int
	expiry   time.Duration
	logger   *slog.Logger
}

// InviteConfig configures an Invite middleware. Uses and Expiry
// default to core.DefaultInviteUses / core.DefaultInviteExpiry when
// zero.
type InviteConfig struct {
	Command string
	Uses    int
	Expiry  time.Duration
	Logger  *slog.Logger
}

// NewInvite constructs an Invite middleware.
func NewInvite(commands chan<- core.Command, cfg InviteConfig) *Invite {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	uses := cfg.Uses
	if uses == 0 {
		uses = core.DefaultInviteUses
	}
	expiry := cfg.Expiry
	if expiry == 0 {
		expiry = core.DefaultInviteExpiry
	}
	return &Invite{
		commands: commands,
		command:  cfg.Command,
		uses:     uses,
		expiry:   expiry,
		logger:   logger,
	}
}

// OnEvent implements core.Middleware.
func (i *Invite) OnEvent(event core.Event) core.Verdict {
	dm, ok := event.Kind.(core.DirectMessage)
	if !ok {
		return core.Continue
	}
	if strings.TrimSpace(dm.Body) != i.command {
		return core.Continue
	}

	if !dm.IsLocalUser {
		i.logger.Info("ignoring invite request from non-local user", "user_id", dm.UserID)
		go i.sendDM(event.ServiceID, dm.UserID,
			"Invite tokens can only be generated for users from this server.")
		return core.Continue
	}

	i.logger.Info("processing invite command", "user_id", dm.UserID)
	go i.generateAndReply(event.ServiceID, dm.UserID)
	return core.Continue
}

func (i *Invite) generateAndReply(serviceID core.ServiceID, userID string) {
	reply := core.NewReply[string]()
	i.commands <- core.GenerateInviteToken{
		ServiceID:   serviceID,
		UserID:      userID,
		UsesAllowed: i.uses,
		Expiry:      i.expiry,
		Reply:       reply,
	}

	token, err := reply.Await(context.Background())
	var message string
	if err != nil {
		i.logger.Error("token generation failed", "user_id", userID, "error", err)
		message = fmt.Sprintf(
			"Failed to generate registration token. The bot may not have admin permissions. Error: %s",
			err)
	} else {
		i.logger.Info("token generated successfully", "user_id", userID)
		message = fmt.Sprintf(
			"Registration token generated: %s\n\nUse this token when registering a new account on this server. It expires in %s.",
			token, i.expiry)
	}

	i.sendDM(serviceID, userID, message)
}

func (i *Invite) sendDM(serviceID core.ServiceID, userID, body string) {
	i.commands <- core.SendDirectMessage{
		ServiceID: serviceID,
		UserID:    userID,
		Body:      body,
	}
}
