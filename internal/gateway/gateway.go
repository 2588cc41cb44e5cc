// Package gateway turns one chat message into one Intent by prompting the
// language model with grounding context and recent history.
package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fentz26/taskchat/internal/conversation"
	"github.com/fentz26/taskchat/internal/failure"
	"github.com/fentz26/taskchat/internal/intent"
	"github.com/fentz26/taskchat/internal/llm"
	"github.com/fentz26/taskchat/internal/snapshot"
)

// Gateway performs one extraction per turn. It never retries.
type Gateway struct {
	provider llm.Provider
	window   int
	log      *zap.Logger
	now      func() time.Time
}

// New returns a Gateway replaying at most window history messages.
func New(p llm.Provider, window int, log *zap.Logger) *Gateway {
	if window <= 0 {
		window = conversation.DefaultWindow
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{provider: p, window: window, log: log, now: time.Now}
}

// WithLogger returns a copy of g that logs to log, typically one carrying
// turn-scoped fields.
func (g *Gateway) WithLogger(log *zap.Logger) *Gateway {
	c := *g
	if log != nil {
		c.log = log
	}
	return &c
}

// Extract prompts the model and parses its reply. Transport and parse
// failures come back as failure.ErrExtraction together with Neutral().
func (g *Gateway) Extract(ctx context.Context, snap *snapshot.Snapshot, message string, history []conversation.Message) (intent.Intent, error) {
	prompt := BuildPrompt(snap.Render(), conversation.Window(history, g.window), message, g.now())

	raw, err := g.provider.Complete(ctx, prompt)
	if err != nil {
		return intent.Neutral(), failure.Wrap(failure.ErrExtraction, "", err)
	}

	obj, ok := intent.ExtractJSONObject(raw)
	if !ok {
		g.log.Warn("model reply had no JSON object", zap.Int("reply_bytes", len(raw)))
		return intent.Neutral(), failure.Wrap(failure.ErrExtraction, "", intent.ErrNoJSON)
	}
	if issues := intent.Validate(obj); len(issues) > 0 {
		g.log.Warn("model reply does not match the intent schema", zap.Strings("issues", issues))
	}
	in, err := intent.Decode([]byte(obj))
	if err != nil {
		return intent.Neutral(), failure.Wrap(failure.ErrExtraction, "", err)
	}
	return in, nil
}
