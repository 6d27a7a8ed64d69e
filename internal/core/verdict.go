package core

// Verdict is the result of a Middleware's OnEvent inspection. It
// controls whether the Bus continues to the next Middleware in the
// pipeline for this Event.
type Verdict int

const (
	// Continue lets the pipeline proceed to the next Middleware.
	Continue Verdict = iota
	// Stop short-circuits the pipeline; no subsequent Middleware in
	// this Service's pipeline observes the Event.
	Stop
)

func (v Verdict) String() string {
	if v == Stop {
		return "Stop"
	}
	return "Continue"
}
