package flowengine

import (
	"context"

	"github.com/kestrelauth/flowengine/internal/correlation"
)

// WithCorrelation attaches a correlation tag to ctx. Every audit event
// and log line emitted while planning under this context carries the
// tag's request ID and host.
func WithCorrelation(ctx context.Context, tag Correlation) context.Context {
	return correlation.With(ctx, tag)
}

// CorrelationFromContext extracts the correlation tag from ctx. A missing
// tag is not an error; emitted events simply carry empty fields.
func CorrelationFromContext(ctx context.Context) (Correlation, bool) {
	return correlation.From(ctx)
}

// EnsureCorrelation attaches a fresh correlation tag unless ctx already
// carries one. Idempotent per request; [middleware.RequestID] calls it at
// request entry.
func EnsureCorrelation(ctx context.Context, host string) (context.Context, Correlation) {
	return correlation.Ensure(ctx, host)
}

// NewRequestID returns a random 32-character hex request identifier.
func NewRequestID() string {
	return correlation.NewRequestID()
}
