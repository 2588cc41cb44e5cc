// Package llm is the boundary to the language understanding service: plain
// text prompt in, raw text out.
package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyResponse indicates the service answered with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Provider sends one prompt and returns the model's raw reply.
type Provider interface {
	ID() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// LoggingProvider records every call's duration and outcome.
type LoggingProvider struct {
	inner Provider
	log   *zap.Logger
}

// WithLogging wraps p so each call is logged.
func WithLogging(p Provider, log *zap.Logger) *LoggingProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingProvider{inner: p, log: log}
}

func (p *LoggingProvider) ID() string {
	return p.inner.ID()
}

func (p *LoggingProvider) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := p.inner.Complete(ctx, prompt)
	fields := []zap.Field{
		zap.String("provider", p.inner.ID()),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("reply_bytes", len(out)),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		p.log.Warn("llm call failed", append(fields, zap.Error(err))...)
		return "", err
	}
	p.log.Debug("llm call", fields...)
	return out, nil
}
