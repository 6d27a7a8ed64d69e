package core

import (
	"math/rand"
	"time"
)

// ReconnectionConfig controls the supervised-restart backoff schedule
// the Bus applies to a Service whose Run returns without cancellation.
// It mirrors connwatch's BackoffConfig, generalized with a jitter
// factor in place of a fixed retry count and background poll.
type ReconnectionConfig struct {
	// InitialDelay is the delay before the first restart (default 1s).
	InitialDelay time.Duration
	// MaxDelay is the ceiling the computed delay is capped at (default 60s).
	MaxDelay time.Duration
	// Multiplier scales the delay on each successive attempt (default 2.0).
	Multiplier float64
	// JitterFactor widens or narrows the delay by a uniform random
	// factor in [1-JitterFactor, 1+JitterFactor]. Zero disables jitter;
	// only a negative value is replaced by the default 0.1.
	JitterFactor float64
}

// DefaultReconnectionConfig returns the default backoff schedule:
// 1s, 2s, 4s, ... capped at 60s, with 10% jitter.
func DefaultReconnectionConfig() ReconnectionConfig {
	return ReconnectionConfig{
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// withDefaults returns a copy of cfg with non-positive InitialDelay,
// MaxDelay and Multiplier, and a negative JitterFactor, replaced by
// DefaultReconnectionConfig's values. A JitterFactor of zero is kept.
func (cfg ReconnectionConfig) withDefaults() ReconnectionConfig {
	d := DefaultReconnectionConfig()
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = d.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = d.MaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = d.Multiplier
	}
	if cfg.JitterFactor < 0 {
		cfg.JitterFactor = d.JitterFactor
	}
	return cfg
}

// recoveryThreshold is how long a Service must stay connected before
// the Bus treats the prior run as a successful recovery and resets
// the attempt counter.
const recoveryThreshold = 30 * time.Second

// backoffState is the Bus's per-service supervision bookkeeping. It
// is not safe for concurrent use; the Bus's supervisor goroutine for
// a given service is its sole owner.
type backoffState struct {
	cfg             ReconnectionConfig
	attemptCount    uint32
	connectionStart time.Time
}

// newBackoffState creates backoff bookkeeping for a service about to
// start its first Run.
func newBackoffState(cfg ReconnectionConfig) *backoffState {
	return &backoffState{
		cfg:             cfg.withDefaults(),
		connectionStart: time.Now(),
	}
}

// nextDelay advances the state machine after a Run exit and returns
// the delay to sleep before the next restart attempt. Call this once
// per non-cancelled exit, immediately before sleeping.
func (b *backoffState) nextDelay() time.Duration {
	if time.Since(b.connectionStart) > recoveryThreshold && b.attemptCount > 0 {
		b.attemptCount = 0
	}
	b.attemptCount++

	base := float64(b.cfg.InitialDelay) * pow(b.cfg.Multiplier, b.attemptCount-1)
	capped := base
	if max := float64(b.cfg.MaxDelay); capped > max {
		capped = max
	}

	jitter := 1 + b.cfg.JitterFactor*(2*rand.Float64()-1)
	delay := capped * jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// markRestarted resets connectionStart to now. Call immediately before
// spawning the next Run attempt.
func (b *backoffState) markRestarted() {
	b.connectionStart = time.Now()
}

// pow computes base^exp for a non-negative integer exponent without
// pulling in math.Pow's float edge-case handling, which this call site
// does not need.
func pow(base float64, exp uint32) float64 {
	result := 1.0
	for ; exp > 0; exp-- {
		result *= base
	}
	return result
}
