package probe

import (
	"context"
	"time"
)

// Outcome is the raw result of one probe.
//
// Fields:
// - StatusCode: HTTP status when a response arrived; 0 for transport errors and timeouts.
// - Body: response body, capped at MaxBodyBytes.
// - Err: transport, timeout or body-read failure. nil means the exchange completed.
type Outcome struct {
	StatusCode int
	Body       []byte
	Latency    time.Duration
	Err        error
}

// Checker performs a single probe of a URL. Implementations must return
// within a bounded time; failures are reported through Outcome.Err.
type Checker interface {
	Check(ctx context.Context, url string) Outcome
}
