package llm

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
)

// TimeoutProvider bounds every call to a fixed deadline. Calls are never
// retried: one attempt per turn.
type TimeoutProvider struct {
	inner Provider
	limit time.Duration
}

// WithTimeout wraps p with a per-call deadline of limit.
func WithTimeout(p Provider, limit time.Duration) *TimeoutProvider {
	return &TimeoutProvider{inner: p, limit: limit}
}

func (p *TimeoutProvider) ID() string {
	return p.inner.ID()
}

func (p *TimeoutProvider) Complete(ctx context.Context, prompt string) (string, error) {
	t := timeout.New[string](timeout.Config{DefaultTimeout: p.limit})
	return t.Execute(ctx, p.limit, func(ctx context.Context) (string, error) {
		return p.inner.Complete(ctx, prompt)
	})
}
