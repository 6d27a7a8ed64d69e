// Package dummy provides a scriptable in-memory Service used by tests
// and local development. It emits synthetic room messages on a timer
// (or on demand via Emit) and fulfills every command synchronously with
// generated identifiers.
package dummy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haydenmc/kelvinbot/internal/core"
)

// Config configures a dummy Service.
type Config struct {
	ID core.ServiceID
	// EmitInterval is how often Run emits a synthetic RoomMessage. Zero
	// disables timed emission; events then only flow through Emit.
	EmitInterval time.Duration
	Logger       *slog.Logger
}

// Service is the dummy backend adapter.
type Service struct {
	cfg    Config
	events chan<- core.Event

	mu    sync.Mutex
	state core.State
	sent  []core.Command // every command handled, for test inspection
}

// New constructs a dummy Service that produces onto events.
func New(events chan<- core.Event, cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{cfg: cfg, events: events, state: core.Idle}
}

// Run implements core.Service. It emits a synthetic RoomMessage every
// EmitInterval until ctx is cancelled, then returns nil.
func (s *Service) Run(ctx context.Context) error {
	s.setState(core.Ready)
	defer s.setState(core.Disconnected)

	s.cfg.Logger.Info("dummy service running", "service_id", s.cfg.ID,
		"emit_interval", s.cfg.EmitInterval)

	if s.cfg.EmitInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.cfg.EmitInterval)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n++
			s.Emit(ctx, core.RoomMessage{
				RoomID:            "dummy-room",
				Body:              fmt.Sprintf("dummy message %d", n),
				IsLocalUser:       true,
				SenderID:          "@dummy:local",
				SenderDisplayName: "Dummy",
			})
		}
	}
}

// Emit pushes an event with this service's ID onto the bus, unless ctx
// is already done. Exposed so tests and local tooling can inject
// arbitrary events.
func (s *Service) Emit(ctx context.Context, kind core.EventKind) {
	select {
	case s.events <- core.Event{ServiceID: s.cfg.ID, Kind: kind}:
	case <-ctx.Done():
	}
}

// HandleCommand implements core.Service. Every command succeeds
// synchronously; sends and token generation fulfill their replies with
// fresh UUIDs.
func (s *Service) HandleCommand(_ context.Context, cmd core.Command) error {
	s.mu.Lock()
	s.sent = append(s.sent, cmd)
	s.mu.Unlock()

	switch c := cmd.(type) {
	case core.SendDirectMessage:
		if c.Reply != nil {
			c.Reply.Fulfill(uuid.NewString(), nil)
		}
	case core.SendRoomMessage:
		if c.Reply != nil {
			c.Reply.Fulfill(uuid.NewString(), nil)
		}
	case core.EditMessage:
		// No reply to fulfill.
	case core.GenerateInviteToken:
		c.Reply.Fulfill("dummy-"+uuid.NewString(), nil)
	default:
		return fmt.Errorf("dummy: unsupported command %T", cmd)
	}
	return nil
}

// Commands returns a copy of every command handled so far.
func (s *Service) Commands() []core.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Command, len(s.sent))
	copy(out, s.sent)
	return out
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
