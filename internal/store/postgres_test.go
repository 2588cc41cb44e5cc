package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/taskchat/internal/models"
)

// Runs against a live server only when TASKCHAT_TEST_PG_DSN is set.
func newPgTestStore(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TASKCHAT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TASKCHAT_TEST_PG_DSN not set")
	}
	s, err := NewPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgres_UpdateAuditRollback(t *testing.T) {
	s := newPgTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "pg-"+time.Now().Format("150405.000000"), "")
	require.NoError(t, err)
	u, err := s.CreateUser(ctx, "pg-user-"+time.Now().Format("150405.000000"), "")
	require.NoError(t, err)

	now := time.Now().UTC()
	task := &models.Task{
		Title: "pg task", Status: models.StatusToDo, Priority: models.PriorityLow,
		ProjectID: p.ID, AuthorUserID: u.ID, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error { return tx.InsertTask(ctx, task) }))

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.UpdateTask(ctx, task.ID, models.TaskPatch{Status: models.Some(models.StatusCompleted)}, now); err != nil {
			return err
		}
		if err := tx.InsertActivities(ctx, []models.TaskActivity{{
			TaskID: task.ID, UserID: u.ID, Action: "status_changed", Field: "status", CreatedAt: now,
		}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusToDo, got.Status)
	assert.Empty(t, got.Activities)

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		if err := tx.DeleteTaskDependents(ctx, task.ID); err != nil {
			return err
		}
		return tx.DeleteTask(ctx, task.ID)
	}))
	_, err = s.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
