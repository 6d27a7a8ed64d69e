package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultChannelCapacity is the buffer size used for the Bus's inbound
// event and outbound command channels when a Config leaves Capacity
// at zero.
const DefaultChannelCapacity = 1024

// ServiceRegistration binds a Service instance to the ServiceID the
// Bus will use to address it, along with the ordered Middleware
// pipeline that observes Events this Service produces.
type ServiceRegistration struct {
	ID        ServiceID
	Service   Service
	Pipeline  []Middleware
	Reconnect ReconnectionConfig
}

// Config assembles a Bus. EventCapacity and CommandCapacity default to
// DefaultChannelCapacity when zero.
type Config struct {
	Services        []ServiceRegistration
	EventCapacity   int
	CommandCapacity int
	Logger          *slog.Logger
}

// Bus is the single cooperative dispatcher described by the package
// doc: it owns the inbound event channel and outbound command
// channel, supervises Service restarts with backoff, starts each
// distinct Middleware's Run exactly once, and dispatches Events and
// Commands to the right place in per-service emission order.
type Bus struct {
	events   chan Event
	commands chan Command
	logger   *slog.Logger

	services   map[ServiceID]Service
	pipelines  map[ServiceID][]Middleware
	reconnect  map[ServiceID]ReconnectionConfig
	middleware []Middleware // de-duplicated by identity, across all pipelines
	seenMW     map[Middleware]bool
}

// levelTrace is the wire-level dispatch log level, kept in sync with
// config.LevelTrace (core does not import config).
const levelTrace = slog.Level(-8)

// NewBus constructs a Bus from cfg. It does not start any goroutines;
// call Run to do so.
func NewBus(cfg Config) *Bus {
	eventCap := cfg.EventCapacity
	if eventCap <= 0 {
		eventCap = DefaultChannelCapacity
	}
	cmdCap := cfg.CommandCapacity
	if cmdCap <= 0 {
		cmdCap = DefaultChannelCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bus{
		events:    make(chan Event, eventCap),
		commands:  make(chan Command, cmdCap),
		logger:    logger,
		services:  make(map[ServiceID]Service, len(cfg.Services)),
		pipelines: make(map[ServiceID][]Middleware, len(cfg.Services)),
		reconnect: make(map[ServiceID]ReconnectionConfig, len(cfg.Services)),
	}

	b.seenMW = make(map[Middleware]bool)
	for _, reg := range cfg.Services {
		b.Register(reg)
	}
	return b
}

// Register adds a service registration. It exists so cmd/kelvinbot can
// construct the Bus first (services and middlewares need its channels
// at their own construction time) and attach registrations afterwards.
// It must not be called once Run has started; the Bus performs no
// locking on its registries.
func (b *Bus) Register(reg ServiceRegistration) {
	b.services[reg.ID] = reg.Service
	b.pipelines[reg.ID] = reg.Pipeline
	b.reconnect[reg.ID] = reg.Reconnect
	for _, mw := range reg.Pipeline {
		if !b.seenMW[mw] {
			b.seenMW[mw] = true
			b.middleware = append(b.middleware, mw)
		}
	}
}

// Events returns the channel Services send Events on. Service
// implementations receive this via their own constructor, not through
// the Bus directly; it is exported so cmd/kelvinbot can wire services
// up before calling Run.
func (b *Bus) Events() chan<- Event { return b.events }

// Commands returns the channel Middlewares send Commands on.
func (b *Bus) Commands() chan<- Command { return b.commands }

// Run starts every registered Service under supervision, starts every
// distinct Middleware's Run exactly once, and then loops dispatching
// Events and Commands until ctx is cancelled. It returns once all
// spawned work has observed cancellation.
func (b *Bus) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	b.logger.Info("bus starting services", "count", len(b.services))
	for id, svc := range b.services {
		wg.Add(1)
		go func(id ServiceID, svc Service) {
			defer wg.Done()
			b.superviseService(ctx, id, svc)
		}(id, svc)
	}

	b.logger.Info("bus starting middleware", "count", len(b.middleware))
	for _, mw := range b.middleware {
		wg.Add(1)
		go func(mw Middleware) {
			defer wg.Done()
			if err := mw.Run(ctx); err != nil && ctx.Err() == nil {
				b.logger.Error("middleware run exited with error", "error", err)
			}
		}(mw)
	}

	b.logger.Info("bus dispatch loop starting")
	b.dispatchLoop(ctx)

	wg.Wait()
	b.logger.Info("bus stopped")
	return nil
}

// dispatchLoop is the Bus's single cooperative task: a select over
// cancellation, inbound Events, and outbound Commands. It returns
// once ctx is cancelled.
func (b *Bus) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-b.events:
			b.dispatchEvent(evt)
		case cmd := <-b.commands:
			b.dispatchCommand(ctx, cmd)
		}
	}
}

// dispatchEvent runs evt through the pipeline registered for its
// originating service, in list order, stopping at the first Stop
// verdict. A missing pipeline drops the event with a debug log.
func (b *Bus) dispatchEvent(evt Event) {
	b.logger.Log(context.Background(), levelTrace, "dispatching event", "event", evt.String())
	pipeline, ok := b.pipelines[evt.ServiceID]
	if !ok {
		b.logger.Debug("dropping event for unregistered service",
			"service_id", evt.ServiceID)
		return
	}
	for _, mw := range pipeline {
		verdict := mw.OnEvent(evt)
		if verdict == Stop {
			break
		}
	}
}

// dispatchCommand routes cmd to the Service it names. An unknown
// service_id is logged and the command discarded; the Bus does not
// resolve any attached Reply itself in that case, since no Service
// ever saw the command to drop it — callers who await a Reply should
// bound the wait with ctx or a deadline.
func (b *Bus) dispatchCommand(ctx context.Context, cmd Command) {
	id := cmd.TargetService()
	b.logger.Log(ctx, levelTrace, "dispatching command", "service_id", id,
		"command", fmt.Sprintf("%T", cmd))
	svc, ok := b.services[id]
	if !ok {
		b.logger.Warn("command targets unregistered service", "service_id", id)
		return
	}
	if err := svc.HandleCommand(ctx, cmd); err != nil {
		b.logger.Error("service command handler returned error",
			"service_id", id, "error", err)
		cmd.dropReplyIfPending(err)
	}
}

// superviseService runs svc.Run repeatedly, applying exponential
// backoff with jitter between restarts, until ctx is cancelled. A
// restart is suppressed only when the exit is observed to coincide
// with ctx's own cancellation.
func (b *Bus) superviseService(ctx context.Context, id ServiceID, svc Service) {
	backoff := newBackoffState(b.reconnect[id])

	for {
		err := svc.Run(ctx)

		if ctx.Err() != nil {
			b.logger.Info("service exited on cancellation", "service_id", id)
			return
		}
		if err != nil {
			b.logger.Warn("service run exited with error", "service_id", id, "error", err)
		} else {
			b.logger.Warn("service run returned without cancellation", "service_id", id)
		}

		delay := backoff.nextDelay()
		b.logger.Info("service restart scheduled", "service_id", id,
			"attempt", backoff.attemptCount, "delay", delay)

		if !sleepCtx(ctx, delay) {
			b.logger.Info("service restart cancelled during backoff sleep", "service_id", id)
			return
		}

		backoff.markRestarted()
	}
}

// sleepCtx sleeps for d or returns early if ctx is cancelled. Reports
// whether the sleep ran to completion.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
