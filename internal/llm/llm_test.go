package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose view worker runs for the life of the process.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// blockingProvider waits until its context is done.
type blockingProvider struct{}

func (blockingProvider) ID() string { return "blocking" }

func (blockingProvider) Complete(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestMockProvider_ScriptedReplies(t *testing.T) {
	boom := errors.New("upstream 503")
	m := NewMockProvider(MockReply{Text: "first"}, MockReply{Err: boom})
	ctx := context.Background()

	out, err := m.Complete(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	_, err = m.Complete(ctx, "p2")
	assert.ErrorIs(t, err, boom)

	_, err = m.Complete(ctx, "p3")
	assert.ErrorIs(t, err, ErrScriptExhausted)

	assert.Equal(t, []string{"p1", "p2", "p3"}, m.Prompts())
}

func TestStaticMockProvider(t *testing.T) {
	m := NewStaticMockProvider(`{"action":"create"}`)
	for i := 0; i < 3; i++ {
		out, err := m.Complete(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, `{"action":"create"}`, out)
	}
}

func TestTimeoutProvider_Expires(t *testing.T) {
	p := WithTimeout(blockingProvider{}, 20*time.Millisecond)

	start := time.Now()
	_, err := p.Complete(context.Background(), "prompt")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "blocking", p.ID())
}

func TestTimeoutProvider_PassesThrough(t *testing.T) {
	p := WithTimeout(NewStaticMockProvider("ok"), time.Second)
	out, err := p.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestLoggingProvider(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p := WithLogging(NewMockProvider(MockReply{Text: "hi"}, MockReply{Err: errors.New("down")}), zap.New(core))

	_, err := p.Complete(context.Background(), "a")
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), "b")
	require.Error(t, err)

	assert.Equal(t, 1, logs.FilterMessage("llm call").Len())
	failed := logs.FilterMessage("llm call failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "mock", failed[0].ContextMap()["provider"])
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(context.Background(), "", "")
	assert.Error(t, err)
}
