// Package store provides transactional persistence for projects, users, tasks
// and the task activity audit trail.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/taskchat/internal/models"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrProjectNotFound indicates a task references a project that does not exist.
var ErrProjectNotFound = fmt.Errorf("project %w", ErrNotFound)

// Reader is the read side the context snapshot and HTTP handlers consume.
type Reader interface {
	ListProjects(ctx context.Context) ([]models.Project, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	// ListRecentTasks returns at most limit tasks, newest first.
	ListRecentTasks(ctx context.Context, limit int) ([]models.Task, error)
	// GetTask returns the task joined with names and its activity history,
	// most recent first.
	GetTask(ctx context.Context, id int64) (*models.Task, error)
}

// Store is the full task store.
type Store interface {
	Reader
	CreateProject(ctx context.Context, name, description string) (*models.Project, error)
	CreateUser(ctx context.Context, username, email string) (*models.User, error)
	ListTasksByProject(ctx context.Context, projectID int64) ([]models.Task, error)

	// WithinTx runs fn in a single transaction. The transaction commits only
	// when fn returns nil; any error or panic rolls everything back.
	WithinTx(ctx context.Context, fn func(Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the unit of work used by the mutation executor.
type Tx interface {
	ProjectExists(ctx context.Context, id int64) (bool, error)
	// InsertTask writes t and fills in its ID.
	InsertTask(ctx context.Context, t *models.Task) error
	TaskByID(ctx context.Context, id int64) (*models.Task, error)
	UpdateTask(ctx context.Context, id int64, patch models.TaskPatch, now time.Time) error
	InsertActivities(ctx context.Context, acts []models.TaskActivity) error
	// DeleteTaskDependents removes assignments, attachments, comments and
	// activity rows of a task.
	DeleteTaskDependents(ctx context.Context, taskID int64) error
	DeleteTask(ctx context.Context, id int64) error
}

// Open returns the store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, path, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		s, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Dependent tables removed before a task, children first.
var dependentTables = []string{"task_assignments", "attachments", "comments", "task_activities"}

const taskColumns = `t.id, t.title, t.description, t.status, t.priority, t.tags,
	t.start_date, t.due_date, t.points, t.project_id, t.author_user_id,
	t.assigned_user_id, t.created_at, t.updated_at,
	COALESCE(p.name, ''), COALESCE(a.username, ''), COALESCE(u.username, '')`

const taskJoins = `FROM tasks t
	LEFT JOIN projects p ON p.id = t.project_id
	LEFT JOIN users a ON a.id = t.author_user_id
	LEFT JOIN users u ON u.id = t.assigned_user_id`

const activityColumns = `id, task_id, user_id, action, field, old_value, new_value, created_at`

type column struct {
	name  string
	value any
}

// patchColumns flattens the set fields of a patch into column assignments.
// Null values become SQL NULL.
func patchColumns(p models.TaskPatch) []column {
	var cols []column
	if p.Title.Set {
		cols = append(cols, column{"title", p.Title.Value})
	}
	if p.Description.Set {
		cols = append(cols, column{"description", p.Description.Value})
	}
	if p.Status.Set {
		cols = append(cols, column{"status", string(p.Status.Value)})
	}
	if p.Priority.Set {
		cols = append(cols, column{"priority", string(p.Priority.Value)})
	}
	if p.Tags.Set {
		cols = append(cols, column{"tags", p.Tags.Value})
	}
	if p.StartDate.Set {
		cols = append(cols, column{"start_date", nullable(p.StartDate)})
	}
	if p.DueDate.Set {
		cols = append(cols, column{"due_date", nullable(p.DueDate)})
	}
	if p.Points.Set {
		cols = append(cols, column{"points", nullable(p.Points)})
	}
	if p.AssignedUserID.Set {
		cols = append(cols, column{"assigned_user_id", nullable(p.AssignedUserID)})
	}
	if p.ProjectID.Set {
		cols = append(cols, column{"project_id", p.ProjectID.Value})
	}
	return cols
}

func nullable[T any](o models.Opt[T]) any {
	if o.Null {
		return nil
	}
	return o.Value
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func int64OrNil(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
