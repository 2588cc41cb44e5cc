// Package executor applies resolved create, update and delete operations to
// the task store, each as one transaction.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fentz26/taskchat/internal/audit"
	"github.com/fentz26/taskchat/internal/failure"
	"github.com/fentz26/taskchat/internal/models"
	"github.com/fentz26/taskchat/internal/store"
)

// User-facing validation messages.
const (
	MsgSignedIn   = "You must be signed in to modify tasks."
	MsgNoTitle    = "A task needs a title."
	MsgNoProject  = "A task needs a project."
	MsgEmptyPatch = "No updated fields were provided to apply."
)

// Executor runs mutations against a Store.
type Executor struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

// New creates an Executor.
func New(s store.Store, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{store: s, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInput is a fully resolved new task.
type CreateInput struct {
	Title          string
	Description    string
	Status         models.TaskStatus
	Priority       models.TaskPriority
	Tags           string
	StartDate      *time.Time
	DueDate        *time.Time
	Points         *int
	ProjectID      int64
	AuthorUserID   int64
	AssignedUserID *int64
}

// Create validates in, checks the project exists and inserts the task.
func (e *Executor) Create(ctx context.Context, in CreateInput) (*models.Task, error) {
	if in.AuthorUserID <= 0 {
		return nil, failure.New(failure.ErrValidation, MsgSignedIn)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, failure.New(failure.ErrValidation, MsgNoTitle)
	}
	if in.ProjectID <= 0 {
		return nil, failure.New(failure.ErrValidation, MsgNoProject)
	}

	now := e.now()
	task := &models.Task{
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Status:         in.Status,
		Priority:       in.Priority,
		Tags:           in.Tags,
		StartDate:      in.StartDate,
		DueDate:        in.DueDate,
		Points:         in.Points,
		ProjectID:      in.ProjectID,
		AuthorUserID:   in.AuthorUserID,
		AssignedUserID: in.AssignedUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		ok, err := tx.ProjectExists(ctx, in.ProjectID)
		if err != nil {
			return err
		}
		if !ok {
			return failure.Wrap(failure.ErrNotFound, fmt.Sprintf("Project #%d was not found.", in.ProjectID), store.ErrProjectNotFound)
		}
		return tx.InsertTask(ctx, task)
	})
	if err != nil {
		return nil, classify(err, fmt.Sprintf("Project #%d was not found.", in.ProjectID))
	}

	e.log.Info("task created",
		zap.Int64("task_id", task.ID),
		zap.Int64("project_id", task.ProjectID),
		zap.Int64("actor_id", in.AuthorUserID))
	return e.reload(ctx, task.ID, task)
}

// Update applies patch to the task and records one activity per changed
// tracked field. The row update and the activity inserts commit together or
// not at all. The returned task carries its activity history, newest first.
func (e *Executor) Update(ctx context.Context, taskID, actorID int64, patch models.TaskPatch) (*models.Task, error) {
	if actorID <= 0 {
		return nil, failure.New(failure.ErrValidation, MsgSignedIn)
	}
	if patch.Empty() {
		return nil, failure.New(failure.ErrValidation, MsgEmptyPatch)
	}
	if patch.Title.Set && (patch.Title.Null || strings.TrimSpace(patch.Title.Value) == "") {
		return nil, failure.New(failure.ErrValidation, MsgNoTitle)
	}
	if patch.ProjectID.Set && patch.ProjectID.Null {
		return nil, failure.New(failure.ErrValidation, MsgNoProject)
	}

	var acts []models.TaskActivity
	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		before, err := tx.TaskByID(ctx, taskID)
		if err != nil {
			return err
		}
		if patch.ProjectID.Set {
			ok, err := tx.ProjectExists(ctx, patch.ProjectID.Value)
			if err != nil {
				return err
			}
			if !ok {
				return failure.Wrap(failure.ErrNotFound, fmt.Sprintf("Project #%d was not found.", patch.ProjectID.Value), store.ErrProjectNotFound)
			}
		}

		now := e.now()
		acts = audit.Diff(*before, patch, actorID, now)
		if err := tx.UpdateTask(ctx, taskID, patch, now); err != nil {
			return err
		}
		return tx.InsertActivities(ctx, acts)
	})
	if err != nil {
		return nil, classify(err, taskNotFound(taskID))
	}

	e.log.Info("task updated",
		zap.Int64("task_id", taskID),
		zap.Int64("actor_id", actorID),
		zap.Strings("fields", patch.Fields()),
		zap.Int("activities", len(acts)))
	return e.reload(ctx, taskID, nil)
}

// Delete removes the task's assignments, attachments, comments and activity
// rows, then the task, in one transaction. There is no undo.
func (e *Executor) Delete(ctx context.Context, taskID int64) error {
	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.TaskByID(ctx, taskID); err != nil {
			return err
		}
		if err := tx.DeleteTaskDependents(ctx, taskID); err != nil {
			return err
		}
		return tx.DeleteTask(ctx, taskID)
	})
	if err != nil {
		return classify(err, taskNotFound(taskID))
	}
	e.log.Info("task deleted", zap.Int64("task_id", taskID))
	return nil
}

// reload reads the committed row back with its joins. The mutation has
// already committed, so a failed read falls back to fallback when given.
func (e *Executor) reload(ctx context.Context, id int64, fallback *models.Task) (*models.Task, error) {
	task, err := e.store.GetTask(ctx, id)
	if err == nil {
		return task, nil
	}
	e.log.Warn("reload after commit failed", zap.Int64("task_id", id), zap.Error(err))
	if fallback != nil {
		return fallback, nil
	}
	return nil, failure.Wrap(failure.ErrStore, "The change was saved but could not be read back.", err)
}

func taskNotFound(id int64) string {
	return fmt.Sprintf("Task #%d was not found.", id)
}

// classify turns store errors into turn failures.
func classify(err error, notFoundMsg string) error {
	if failure.KindOf(err) != nil {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return failure.Wrap(failure.ErrNotFound, notFoundMsg, err)
	}
	return failure.Wrap(failure.ErrStore, "", err)
}
