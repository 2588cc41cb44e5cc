package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fentz26/taskchat/internal/completion"
	"github.com/fentz26/taskchat/internal/executor"
	"github.com/fentz26/taskchat/internal/failure"
	"github.com/fentz26/taskchat/internal/intent"
	"github.com/fentz26/taskchat/internal/llm"
	"github.com/fentz26/taskchat/internal/models"
	"github.com/fentz26/taskchat/internal/resolver"
	"github.com/fentz26/taskchat/internal/store"
	"github.com/fentz26/taskchat/internal/turn"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose view worker runs for the life of the process.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	store   *store.SQLite
	mock    *llm.MockProvider
	engine  *Engine
	project *models.Project
	alice   *models.User
	bob     *models.User
}

func newEnv(t *testing.T, withProject bool, replies ...string) *env {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	e := &env{store: s}
	if withProject {
		e.project, err = s.CreateProject(ctx, "Apollo", "moon shot")
		require.NoError(t, err)
	}
	e.alice, err = s.CreateUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	e.bob, err = s.CreateUser(ctx, "bob", "")
	require.NoError(t, err)

	script := make([]llm.MockReply, len(replies))
	for i, r := range replies {
		script[i] = llm.MockReply{Text: r}
	}
	e.mock = llm.NewMockProvider(script...)
	e.engine = New(s, e.mock, nil, Options{
		Rand:       rand.New(rand.NewPCG(1, 2)),
		Now:        func() time.Time { return fixedNow },
		Completion: completion.DefaultOptions(time.Time{}),
	})
	return e
}

func (e *env) seedTask(t *testing.T, status models.TaskStatus) *models.Task {
	t.Helper()
	task, err := executor.New(e.store, nil).Create(context.Background(), executor.CreateInput{
		Title:        "Fix Login Bug",
		Status:       status,
		Priority:     models.PriorityHigh,
		ProjectID:    e.project.ID,
		AuthorUserID: e.alice.ID,
	})
	require.NoError(t, err)
	return task
}

func (e *env) taskCount(t *testing.T) int {
	t.Helper()
	tasks, err := e.store.ListRecentTasks(context.Background(), 100)
	require.NoError(t, err)
	return len(tasks)
}

func TestCreateWithAutoFill(t *testing.T) {
	e := newEnv(t, true, `{"action":"create","title":"Fix Login Bug","projectId":null}`)
	ctx := context.Background()

	res, err := e.engine.SubmitTurn(ctx, TurnRequest{Message: "create a task called Fix Login Bug"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.TurnID)
	require.NotNil(t, res.Extracted.ProjectID)
	assert.Equal(t, e.project.ID, *res.Extracted.ProjectID)
	assert.Equal(t, turn.StateBlockedMissingFields, res.Classification.State)
	assert.Contains(t, res.Classification.Missing, "dueDate")
	assert.Equal(t, 0, e.taskCount(t), "submitting a turn never writes")

	_, err = e.engine.Confirm(ctx, ConfirmRequest{Intent: res.Extracted, ActorUserID: e.alice.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrValidation))

	out, err := e.engine.Confirm(ctx, ConfirmRequest{Intent: res.Extracted, ActorUserID: e.alice.ID, AutoFill: true})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, turn.StateCompleted, out.State)
	assert.Equal(t, "Task created successfully.", out.Message)

	task := out.Task
	require.NotNil(t, task)
	assert.Equal(t, "Fix Login Bug", task.Title)
	assert.Equal(t, e.project.ID, task.ProjectID)
	assert.Equal(t, e.alice.ID, task.AuthorUserID)
	assert.Contains(t, completion.DefaultVocabulary.Descriptions, task.Description)
	assert.Contains(t, models.Statuses, task.Status)
	assert.Contains(t, models.Priorities, task.Priority)
	assert.Contains(t, completion.DefaultVocabulary.Tags, task.Tags)
	require.NotNil(t, task.StartDate)
	require.NotNil(t, task.DueDate)
	assert.False(t, task.StartDate.Before(fixedNow.AddDate(0, 0, -6)))
	assert.True(t, task.DueDate.Before(fixedNow.AddDate(0, 0, 16)))
	require.NotNil(t, task.AssignedUserID)
	assert.Contains(t, []string{"alice", "bob"}, task.AssigneeUsername)
}

func TestUpdateRecordsActivity(t *testing.T) {
	e := newEnv(t, true)
	task := e.seedTask(t, models.StatusInProgress)
	ctx := context.Background()

	taskID := task.ID
	in := intent.Intent{
		Action:        intent.ActionUpdate,
		TaskID:        &taskID,
		UpdatedFields: map[string]any{"status": "Completed"},
	}
	out, err := e.engine.Confirm(ctx, ConfirmRequest{Intent: in, ActorUserID: e.bob.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, "Task #"+itoa(task.ID)+" updated successfully.", out.Message)

	got, err := e.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.Len(t, got.Activities, 1)
	act := got.Activities[0]
	assert.Equal(t, "status", act.Field)
	assert.Equal(t, e.bob.ID, act.UserID)
	require.NotNil(t, act.OldValue)
	require.NotNil(t, act.NewValue)
	assert.Equal(t, string(models.StatusInProgress), *act.OldValue)
	assert.Equal(t, string(models.StatusCompleted), *act.NewValue)
}

func TestUpdateResolvesFields(t *testing.T) {
	e := newEnv(t, true)
	task := e.seedTask(t, models.StatusToDo)
	ctx := context.Background()

	taskID := task.ID
	in := intent.Intent{
		Action: intent.ActionUpdate,
		TaskID: &taskID,
		UpdatedFields: map[string]any{
			"Assignee": "BOB",
			"due_date": "2025-04-01",
			"priority": "low",
			"tags":     []any{"ui", "bug"},
		},
	}
	_, err := e.engine.Confirm(ctx, ConfirmRequest{Intent: in, ActorUserID: e.alice.ID})
	require.NoError(t, err)

	got, err := e.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssignedUserID)
	assert.Equal(t, e.bob.ID, *got.AssignedUserID)
	assert.Equal(t, "2025-04-01", models.FormatDate(got.DueDate))
	assert.Equal(t, models.PriorityLow, got.Priority)
	assert.Equal(t, "ui,bug", got.Tags)
	assert.Len(t, got.Activities, 4)
}

func TestUpdateWithNothingToApplyIsNoop(t *testing.T) {
	e := newEnv(t, true)
	task := e.seedTask(t, models.StatusToDo)

	taskID := task.ID
	in := intent.Intent{
		Action:        intent.ActionUpdate,
		TaskID:        &taskID,
		UpdatedFields: map[string]any{"assignee": "nobody-we-know"},
	}
	out, err := e.engine.Confirm(context.Background(), ConfirmRequest{Intent: in, ActorUserID: e.alice.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusNoop, out.Status)
	assert.Equal(t, executor.MsgEmptyPatch, out.Message)

	got, err := e.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Activities)
}

func TestUpdateRejectsBadDate(t *testing.T) {
	e := newEnv(t, true)
	task := e.seedTask(t, models.StatusToDo)

	taskID := task.ID
	in := intent.Intent{
		Action:        intent.ActionUpdate,
		TaskID:        &taskID,
		UpdatedFields: map[string]any{"dueDate": "next tuesday"},
	}
	_, err := e.engine.Confirm(context.Background(), ConfirmRequest{Intent: in, ActorUserID: e.alice.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrValidation)
}

func TestDeleteMissingTask(t *testing.T) {
	e := newEnv(t, true, `{"action":"delete","taskId":999}`)
	e.seedTask(t, models.StatusToDo)
	ctx := context.Background()

	res, err := e.engine.SubmitTurn(ctx, TurnRequest{Message: "delete task 999"})
	require.NoError(t, err)
	assert.Equal(t, turn.StateReady, res.Classification.State)

	_, err = e.engine.Confirm(ctx, ConfirmRequest{Intent: res.Extracted, ActorUserID: e.alice.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrNotFound)
	assert.Equal(t, "Unable to delete the task: Task #999 was not found.", failure.UserMessage(err))
	assert.Equal(t, 1, e.taskCount(t))
}

func TestDeleteTask(t *testing.T) {
	e := newEnv(t, true)
	task := e.seedTask(t, models.StatusToDo)

	taskID := task.ID
	out, err := e.engine.Confirm(context.Background(), ConfirmRequest{
		Intent:      intent.Intent{Action: intent.ActionDelete, TaskID: &taskID},
		ActorUserID: e.alice.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Task #"+itoa(task.ID)+" deleted.", out.Message)
	assert.Equal(t, 0, e.taskCount(t))
}

func TestMissingTaskIDBlocks(t *testing.T) {
	e := newEnv(t, true, `{"action":"update","assignee":"Alice","updatedFields":{"assignee":"Alice"}}`)
	e.seedTask(t, models.StatusToDo)
	ctx := context.Background()

	res, err := e.engine.SubmitTurn(ctx, TurnRequest{Message: "assign this to Alice"})
	require.NoError(t, err)
	assert.Equal(t, turn.StateBlockedMissingID, res.Classification.State)
	assert.Equal(t, turn.MsgUpdateNeedsID, res.Classification.Message)

	_, err = e.engine.Confirm(ctx, ConfirmRequest{Intent: res.Extracted, ActorUserID: e.alice.ID, AutoFill: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrMissingReference)

	got, err := e.store.ListRecentTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].AssignedUserID)
}

func TestClarificationNeverExecutes(t *testing.T) {
	reply := `{"action":"create","title":"Write docs","description":"d","status":"To Do","priority":"Low",
		"tags":"docs","startDate":"2025-03-01","dueDate":"2025-03-05","assignee":"bob",
		"needsClarification":true,"followUpQuestion":"Which project should this go in?"}`
	e := newEnv(t, true, reply)
	ctx := context.Background()

	res, err := e.engine.SubmitTurn(ctx, TurnRequest{Message: "write some docs"})
	require.NoError(t, err)
	assert.Equal(t, turn.StateBlockedClarification, res.Classification.State)
	assert.Equal(t, "Which project should this go in?", res.Classification.Message)

	_, err = e.engine.Confirm(ctx, ConfirmRequest{Intent: res.Extracted, ActorUserID: e.alice.ID, AutoFill: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrAmbiguous)
	assert.Equal(t, 0, e.taskCount(t))
}

func TestCreateWithoutProjects(t *testing.T) {
	e := newEnv(t, false, `{"action":"create","title":"Orphan"}`)
	ctx := context.Background()

	res, err := e.engine.SubmitTurn(ctx, TurnRequest{Message: "create Orphan"})
	require.NoError(t, err)
	assert.Equal(t, turn.StateBlockedClarification, res.Classification.State)
	assert.Equal(t, resolver.MsgNoProject, res.Classification.Message)

	_, err = e.engine.Confirm(ctx, ConfirmRequest{Intent: res.Extracted, ActorUserID: e.alice.ID, AutoFill: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrValidation)
	assert.Equal(t, 0, e.taskCount(t))
}

func TestCreateUsesCurrentProject(t *testing.T) {
	e := newEnv(t, true, `{"action":"create","title":"Ship it"}`)
	ctx := context.Background()
	other, err := e.store.CreateProject(ctx, "Gemini", "")
	require.NoError(t, err)

	res, err := e.engine.SubmitTurn(ctx, TurnRequest{Message: "create Ship it", CurrentProjectID: &other.ID})
	require.NoError(t, err)
	require.NotNil(t, res.Extracted.ProjectID)
	assert.Equal(t, other.ID, *res.Extracted.ProjectID)
}

func TestSubmitTurnFailures(t *testing.T) {
	t.Run("empty message", func(t *testing.T) {
		e := newEnv(t, true)
		_, err := e.engine.SubmitTurn(context.Background(), TurnRequest{Message: "   "})
		assert.ErrorIs(t, err, failure.ErrValidation)
		assert.Empty(t, e.mock.Prompts())
	})

	t.Run("model returns prose", func(t *testing.T) {
		e := newEnv(t, true, "Sure! I would love to help with that.")
		_, err := e.engine.SubmitTurn(context.Background(), TurnRequest{Message: "hello"})
		assert.ErrorIs(t, err, failure.ErrExtraction)
	})
}

func TestConfirmRequiresActor(t *testing.T) {
	e := newEnv(t, true)
	task := e.seedTask(t, models.StatusToDo)

	taskID := task.ID
	_, err := e.engine.Confirm(context.Background(), ConfirmRequest{
		Intent: intent.Intent{Action: intent.ActionDelete, TaskID: &taskID},
	})
	require.Error(t, err)
	assert.Equal(t, executor.MsgSignedIn, failure.UserMessage(err))
	assert.Equal(t, 1, e.taskCount(t))
}

func TestPromptCarriesSnapshotAndHistory(t *testing.T) {
	e := newEnv(t, true, `{"action":"create","title":"x"}`)
	e.seedTask(t, models.StatusToDo)

	_, err := e.engine.SubmitTurn(context.Background(), TurnRequest{Message: "one more like that"})
	require.NoError(t, err)

	prompts := e.mock.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Apollo")
	assert.Contains(t, prompts[0], "Fix Login Bug")
	assert.Contains(t, prompts[0], "one more like that")
}

func itoa(n int64) string {
	return fmt.Sprint(n)
}
