package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/taskchat/internal/api"
	"github.com/fentz26/taskchat/internal/engine"
	"github.com/fentz26/taskchat/internal/llm"
	"github.com/fentz26/taskchat/internal/models"
	"github.com/fentz26/taskchat/internal/store"
)

// startAPI points the CLI at a real API over a temporary database.
func startAPI(t *testing.T, replies ...string) (*store.SQLite, *models.Project) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	p, err := st.CreateProject(ctx, "Apollo", "")
	require.NoError(t, err)
	_, err = st.CreateUser(ctx, "alice", "")
	require.NoError(t, err)

	script := make([]llm.MockReply, len(replies))
	for i, r := range replies {
		script[i] = llm.MockReply{Text: r}
	}
	eng := engine.New(st, llm.NewMockProvider(script...), nil, engine.Options{})
	srv := httptest.NewServer(api.NewServer(eng, st, "", nil, api.Options{}).Handler())
	t.Cleanup(srv.Close)

	prev := apiAddr
	apiAddr = srv.URL
	t.Cleanup(func() { apiAddr = prev })
	return st, p
}

func TestResolveActor(t *testing.T) {
	startAPI(t)

	id, err := resolveActor("ALICE")
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = resolveActor("mallory")
	assert.ErrorContains(t, err, `unknown user "mallory"`)

	_, err = resolveActor(" ")
	assert.Error(t, err)
}

func TestAskAppliesCreate(t *testing.T) {
	st, p := startAPI(t, `{"action":"create","title":"Write docs"}`)

	askActor, askProject, askYes, askFill = "alice", p.ID, true, true
	t.Cleanup(func() { askActor, askProject, askYes, askFill = "", 0, false, false })

	var out bytes.Buffer
	askCmd.SetOut(&out)
	t.Cleanup(func() { askCmd.SetOut(nil) })
	require.NoError(t, runAsk(askCmd, []string{"add", "a", "docs", "task"}))
	assert.Contains(t, out.String(), "Task created successfully.")

	tasks, err := st.ListTasksByProject(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Write docs", tasks[0].Title)
}

func TestAskWithoutFillStops(t *testing.T) {
	st, p := startAPI(t, `{"action":"create","title":"Write docs"}`)

	askActor, askProject, askYes = "alice", p.ID, true
	t.Cleanup(func() { askActor, askProject, askYes = "", 0, false })

	var out bytes.Buffer
	askCmd.SetOut(&out)
	t.Cleanup(func() { askCmd.SetOut(nil) })
	require.NoError(t, runAsk(askCmd, []string{"add docs"}))
	assert.Contains(t, out.String(), "--fill")

	tasks, err := st.ListTasksByProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestTaskUpdateAndDelete(t *testing.T) {
	st, p := startAPI(t)
	ctx := context.Background()

	alice, err := resolveActor("alice")
	require.NoError(t, err)
	task := &models.Task{
		Title: "Old", Status: models.StatusToDo, Priority: models.PriorityLow,
		ProjectID: p.ID, AuthorUserID: alice,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.WithinTx(ctx, func(tx store.Tx) error { return tx.InsertTask(ctx, task) }))

	taskActor = "alice"
	t.Cleanup(func() { taskActor = "" })
	id := fmt.Sprintf("#%d", task.ID)

	require.NoError(t, runTaskUpdate(taskUpdateCmd, []string{id, "title=New", "status=done"}))
	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.Len(t, got.Activities, 1)
	assert.Equal(t, "status", got.Activities[0].Field)

	err = runTaskUpdate(taskUpdateCmd, []string{id, "title"})
	assert.ErrorContains(t, err, "expected field=value")

	require.NoError(t, runTaskDelete(taskDeleteCmd, []string{id}))
	_, err = st.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = runTaskDelete(taskDeleteCmd, []string{id})
	assert.ErrorContains(t, err, "was not found")
}

func TestCheckHealth(t *testing.T) {
	startAPI(t)
	h, err := CheckHealth()
	require.NoError(t, err)
	assert.True(t, h.OK)
	assert.Equal(t, api.Version, h.Version)
	assert.True(t, isDaemonRunning(apiAddr))
}

func TestParseTaskID(t *testing.T) {
	id, err := parseTaskID("#42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "x", "0", "-3"} {
		_, err := parseTaskID(bad)
		assert.Error(t, err, bad)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
