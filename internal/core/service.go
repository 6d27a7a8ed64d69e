package core

import "context"

// Service adapts one external chat backend to the bus. A Service is a
// long-running, restartable state machine: Idle → Connecting → Ready →
// Disconnected. The Bus owns exactly one instance per configured
// service and calls Run repeatedly (with fresh backoff-gated delays)
// across the process lifetime; Run must tolerate being invoked again
// after a previous call returned.
type Service interface {
	// Run is long-lived. It returns nil on graceful cancellation (ctx
	// done) and a non-nil error on any other exit; the Bus treats
	// both the same way for restart purposes (only ctx.Err() != nil
	// on the Bus's own cancellation token suppresses a restart).
	// Events are produced by sending on the Bus's event channel,
	// handed to the Service at construction time; Run must stop
	// sending once ctx is done.
	Run(ctx context.Context) error

	// HandleCommand executes a Command while Run is active. It must
	// not block the Bus indefinitely — long-running work must be
	// spawned internally and reported back via the Command's Reply,
	// not via this method's return value. The returned error is
	// logged by the Bus; it is not delivered to the command's issuer.
	HandleCommand(ctx context.Context, cmd Command) error
}

// State is the lifecycle stage a Service implementation may expose
// for diagnostics (health endpoints, status commands). The Bus itself
// does not inspect State; it is provided for Service implementations
// that want a standard vocabulary.
type State int

const (
	Idle State = iota
	Connecting
	Ready
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Ready:
		return "Ready"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}
