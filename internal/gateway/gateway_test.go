package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fentz26/taskchat/internal/conversation"
	"github.com/fentz26/taskchat/internal/failure"
	"github.com/fentz26/taskchat/internal/intent"
	"github.com/fentz26/taskchat/internal/llm"
	"github.com/fentz26/taskchat/internal/models"
	"github.com/fentz26/taskchat/internal/snapshot"
)

func testSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Projects: []models.Project{{ID: 1, Name: "Apollo"}},
		Users:    []models.User{{ID: 2, Username: "alice"}},
	}
}

func TestBuildPrompt(t *testing.T) {
	today := time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC)
	history := []conversation.Message{
		{Role: conversation.RoleUser, Content: "hello"},
		{Role: conversation.RoleAssistant, Content: "hi there"},
	}

	p := BuildPrompt("PROJECTS:\n[]", history, "  create a task  ", today)

	assert.Contains(t, p, "Today is 2025-05-04.")
	assert.Contains(t, p, "PROJECTS:\n[]")
	assert.Contains(t, p, "USER: hello\nASSISTANT: hi there")
	assert.True(t, strings.HasSuffix(p, "USER MESSAGE:\ncreate a task\n"))
}

func TestBuildPrompt_NoHistory(t *testing.T) {
	p := BuildPrompt("", nil, "x", time.Now())
	assert.Contains(t, p, "CONVERSATION SO FAR:\nNo prior conversation.")
}

func TestExtract_ParsesWrappedReply(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockReply{Text: "Sure:\n```json\n{\"action\":\"update\",\"taskId\":42,\"updatedFields\":{\"status\":\"Completed\"}}\n```"})
	g := New(mock, 12, nil)

	in, err := g.Extract(context.Background(), testSnapshot(), "mark task 42 as Completed", nil)
	require.NoError(t, err)
	assert.Equal(t, intent.ActionUpdate, in.Action)
	require.NotNil(t, in.TaskID)
	assert.Equal(t, int64(42), *in.TaskID)
	assert.Equal(t, "Completed", in.UpdatedFields["status"])

	prompts := mock.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], `"username":"alice"`)
	assert.Contains(t, prompts[0], "mark task 42 as Completed")
}

func TestExtract_TrimsHistoryToWindow(t *testing.T) {
	mock := llm.NewStaticMockProvider(`{"action":"create"}`)
	g := New(mock, 2, nil)
	history := []conversation.Message{
		{Role: conversation.RoleUser, Content: "oldest"},
		{Role: conversation.RoleUser, Content: "middle"},
		{Role: conversation.RoleUser, Content: "newest"},
	}

	_, err := g.Extract(context.Background(), testSnapshot(), "go", history)
	require.NoError(t, err)
	p := mock.Prompts()[0]
	assert.NotContains(t, p, "oldest")
	assert.Contains(t, p, "middle")
	assert.Contains(t, p, "newest")
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply llm.MockReply
	}{
		{"transport", llm.MockReply{Err: errors.New("503 Service Unavailable")}},
		{"prose only", llm.MockReply{Text: "I am not sure what you mean."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockProvider(tt.reply)
			in, err := New(mock, 12, nil).Extract(context.Background(), testSnapshot(), "???", nil)
			assert.ErrorIs(t, err, failure.ErrExtraction)
			assert.Equal(t, intent.Neutral(), in)
			assert.Len(t, mock.Prompts(), 1, "exactly one attempt")
		})
	}
}

func TestExtract_WarnsOnSchemaMismatch(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	mock := llm.NewMockProvider(
		llm.MockReply{Text: `{"taskId":7,"needsClarification":true}`},
		llm.MockReply{Text: `{"action":"delete","taskId":7}`},
	)
	g := New(mock, 12, nil).WithLogger(zap.New(core).With(zap.String("turn_id", "t-1")))

	in, err := g.Extract(context.Background(), testSnapshot(), "delete 7?", nil)
	require.NoError(t, err)
	assert.True(t, in.NeedsClarification)

	warned := logs.FilterMessage("model reply does not match the intent schema").All()
	require.Len(t, warned, 1)
	assert.Equal(t, zap.WarnLevel, warned[0].Level)
	assert.Equal(t, "t-1", warned[0].ContextMap()["turn_id"])
	assert.NotEmpty(t, warned[0].ContextMap()["issues"])

	_, err = g.Extract(context.Background(), testSnapshot(), "delete 7", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("model reply does not match the intent schema").Len())
}
