package core

import "context"

// Middleware is a pluggable policy element bound to one or more
// Service pipelines. OnEvent runs synchronously under the Bus's
// single per-service serialization point, so implementations must not
// block on I/O there — background work (sending Commands, awaiting
// Replies) belongs in a spawned goroutine.
type Middleware interface {
	// Run is an optional long-lived task (e.g. a scheduled poster).
	// It must return promptly once ctx is cancelled. Implementations
	// with nothing to do in the background should embed NoRun to
	// satisfy the interface with a no-op.
	Run(ctx context.Context) error

	// OnEvent inspects a single Event and returns a Verdict. The Bus
	// calls it from its single dispatch goroutine, for every Service
	// pipeline the instance is registered in; it must be safe to run
	// alongside the background goroutines the Middleware itself spawns.
	OnEvent(event Event) Verdict
}

// NoRun is embedded by Middlewares that have no background task. Its
// Run blocks until ctx is cancelled and returns nil, matching the
// contract that Run "returns promptly on cancellation" without
// requiring every middleware to hand-write the same select loop.
type NoRun struct{}

// Run blocks until ctx is done.
func (NoRun) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
