// Package federated is the boundary adapter for the federated,
// end-to-end-encrypted chat backend. The login/sync/crypto transport is
// an external collaborator and not implemented here; this package
// carries the two admin edges the bot itself owns: registration-token
// issuance over the server's admin API, and pairing-code rendering for
// device verification.
package federated

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/net/http2"

	"github.com/haydenmc/kelvinbot/internal/core"
	"github.com/haydenmc/kelvinbot/internal/deviceverify"
	"github.com/haydenmc/kelvinbot/internal/httpkit"
	"github.com/haydenmc/kelvinbot/internal/tokenstore"
)

// healthInterval is how often Run pings the admin API while connected.
const healthInterval = 60 * time.Second

// Config configures a federated Service.
type Config struct {
	ID core.ServiceID
	// Homeserver is the federated server's base URL, used for display
	// and as the issuer identity in pairing codes.
	Homeserver string
	// AdminBaseURL is the admin API endpoint. Empty means the default
	// public endpoint.
	AdminBaseURL string
	// AdminToken authenticates admin API calls.
	AdminToken string
	// Org is the admin-API organization whose invitations stand in for
	// the server's registration tokens.
	Org string
	// DataDir is the per-service storage root for the token audit
	// database and pairing-code output.
	DataDir string
	Logger  *slog.Logger
}

// Service is the federated backend's admin boundary.
type Service struct {
	cfg    Config
	events chan<- core.Event
	client *github.Client
	flow   deviceverify.Flow

	mu     sync.Mutex
	tokens *tokenstore.Store
	state  core.State
}

// New constructs a federated Service that produces onto events. The
// admin client rides the shared httpkit transport with HTTP/2
// keepalive pings enabled, so a silently dead connection is noticed
// between health checks.
func New(events chan<- core.Event, cfg Config) (*Service, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Org == "" {
		return nil, fmt.Errorf("federated: org is required")
	}

	transport := httpkit.NewTransport()
	if h2, err := http2.ConfigureTransports(transport); err == nil {
		h2.ReadIdleTimeout = 30 * time.Second
		h2.PingTimeout = 15 * time.Second
	}

	httpClient := httpkit.NewClient(
		httpkit.WithTransport(transport),
		httpkit.WithLogger(cfg.Logger),
	)

	client := github.NewClient(httpClient).WithAuthToken(cfg.AdminToken)
	if cfg.AdminBaseURL != "" && cfg.AdminBaseURL != "https://api.github.com" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.AdminBaseURL, cfg.AdminBaseURL)
		if err != nil {
			return nil, fmt.Errorf("configure admin URL: %w", err)
		}
	}

	return &Service{
		cfg:    cfg,
		events: events,
		client: client,
		flow:   deviceverify.NewQRFlow(cfg.Homeserver),
		state:  core.Idle,
	}, nil
}

// Run implements core.Service. It verifies admin credentials, opens the
// token audit store, and then health-checks the admin API until ctx is
// cancelled or a check fails (the Bus restarts with backoff).
func (s *Service) Run(ctx context.Context) error {
	s.setState(core.Connecting)
	defer s.setState(core.Disconnected)

	if _, _, err := s.client.Organizations.Get(ctx, s.cfg.Org); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("admin API unreachable: %w", err)
	}

	tokens, err := tokenstore.Open(s.cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		s.mu.Lock()
		s.tokens = nil
		s.mu.Unlock()
		tokens.Close()
	}()

	s.mu.Lock()
	s.tokens = tokens
	s.state = core.Ready
	s.mu.Unlock()

	s.cfg.Logger.Info("federated admin boundary ready",
		"service_id", s.cfg.ID, "org", s.cfg.Org)

	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, _, err := s.client.Organizations.Get(ctx, s.cfg.Org); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.emit(ctx, core.ServiceDisconnected{Reason: err.Error(), Attempt: 1})
				return fmt.Errorf("admin API health check: %w", err)
			}
		}
	}
}

func (s *Service) emit(ctx context.Context, kind core.EventKind) {
	select {
	case s.events <- core.Event{ServiceID: s.cfg.ID, Kind: kind}:
	case <-ctx.Done():
	}
}

// HandleCommand implements core.Service. Only GenerateInviteToken is
// meaningful on this boundary; message sends require the sync transport
// this package does not carry and fail fast.
func (s *Service) HandleCommand(ctx context.Context, cmd core.Command) error {
	switch c := cmd.(type) {
	case core.GenerateInviteToken:
		if s.State() != core.Ready {
			return fmt.Errorf("federated: not connected")
		}
		go s.issueToken(ctx, c)
		return nil

	case core.SendDirectMessage, core.SendRoomMessage, core.EditMessage:
		return fmt.Errorf("federated: message transport not available on the admin boundary")

	default:
		return fmt.Errorf("federated: unsupported command %T", cmd)
	}
}

// issueToken creates an organization invitation for the requesting user
// and fulfills the reply with its accept URL. The issued token is
// recorded (hashed) in the audit store; a recording failure is logged
// but does not fail the issuance, since the user already holds a valid
// invitation at that point.
func (s *Service) issueToken(ctx context.Context, cmd core.GenerateInviteToken) {
	uses := cmd.UsesAllowed
	if uses == 0 {
		uses = core.DefaultInviteUses
	}
	expiry := cmd.Expiry
	if expiry == 0 {
		expiry = core.DefaultInviteExpiry
	}

	email, err := emailForUser(cmd.UserID)
	if err != nil {
		cmd.Reply.Fulfill("", err)
		return
	}

	role := "direct_member"
	inv, _, err := s.client.Organizations.CreateOrgInvitation(ctx, s.cfg.Org,
		&github.CreateOrgInvitationOptions{
			Email: &email,
			Role:  &role,
		})
	if err != nil {
		s.cfg.Logger.Error("invitation creation failed",
			"user_id", cmd.UserID, "error", err)
		cmd.Reply.Fulfill("", fmt.Errorf("create invitation: %w", err))
		return
	}

	acceptURL := fmt.Sprintf("https://github.com/orgs/%s/invitation", s.cfg.Org)

	s.mu.Lock()
	tokens := s.tokens
	s.mu.Unlock()
	if tokens != nil {
		rec := tokenstore.IssuedToken{
			ID:          fmt.Sprintf("inv-%d", inv.GetID()),
			ServiceID:   string(s.cfg.ID),
			UserID:      cmd.UserID,
			UsesAllowed: uses,
			ExpiresAt:   time.Now().Add(expiry),
		}
		if err := tokens.Record(ctx, rec, acceptURL); err != nil {
			s.cfg.Logger.Error("failed to record issued token", "error", err)
		}
	}

	s.cfg.Logger.Info("invite token issued",
		"user_id", cmd.UserID, "invitation_id", inv.GetID())
	cmd.Reply.Fulfill(acceptURL, nil)
}

// VerifyDevice renders a pairing QR code for a new E2E device and
// writes it under the service data directory, returning the file path
// for the operator to open and scan.
func (s *Service) VerifyDevice(deviceID, verificationKey string) (string, error) {
	path, err := deviceverify.WritePairingCode(s.flow, s.cfg.DataDir, deviceID, verificationKey)
	if err != nil {
		return "", fmt.Errorf("render pairing code: %w", err)
	}
	s.cfg.Logger.Info("pairing code written", "device_id", deviceID, "path", path)
	return path, nil
}

// State returns the service's current lifecycle stage.
func (s *Service) State() core.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) setState(st core.State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// emailForUser maps a chat user id to the email address the admin API
// invites. Federated ids of the form "@local:domain" become
// "local@domain"; plain email addresses pass through.
func emailForUser(userID string) (string, error) {
	if strings.HasPrefix(userID, "@") {
		local, domain, ok := strings.Cut(userID[1:], ":")
		if !ok || local == "" || domain == "" {
			return "", fmt.Errorf("federated: cannot derive email from user id %q", userID)
		}
		return local + "@" + domain, nil
	}
	if strings.Contains(userID, "@") {
		return userID, nil
	}
	return "", fmt.Errorf("federated: cannot derive email from user id %q", userID)
}

var _ core.Service = (*Service)(nil)
