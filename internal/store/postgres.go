package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/taskchat/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the server Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.EnsureTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// EnsureTables creates the schema if it doesn't exist.
func (s *Postgres) EnsureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id          BIGSERIAL PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id         BIGSERIAL PRIMARY KEY,
			username   TEXT NOT NULL UNIQUE,
			email      TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id               BIGSERIAL PRIMARY KEY,
			title            TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT '',
			priority         TEXT NOT NULL DEFAULT '',
			tags             TEXT NOT NULL DEFAULT '',
			start_date       DATE,
			due_date         DATE,
			points           INTEGER,
			project_id       BIGINT NOT NULL REFERENCES projects(id),
			author_user_id   BIGINT NOT NULL,
			assigned_user_id BIGINT,
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS task_activities (
			id         BIGSERIAL PRIMARY KEY,
			task_id    BIGINT NOT NULL REFERENCES tasks(id),
			user_id    BIGINT NOT NULL,
			action     TEXT NOT NULL,
			field      TEXT NOT NULL,
			old_value  TEXT,
			new_value  TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS task_assignments (
			id      BIGSERIAL PRIMARY KEY,
			task_id BIGINT NOT NULL REFERENCES tasks(id),
			user_id BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attachments (
			id             BIGSERIAL PRIMARY KEY,
			task_id        BIGINT NOT NULL REFERENCES tasks(id),
			uploaded_by_id BIGINT NOT NULL,
			file_url       TEXT NOT NULL,
			file_name      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS comments (
			id      BIGSERIAL PRIMARY KEY,
			task_id BIGINT NOT NULL REFERENCES tasks(id),
			user_id BIGINT NOT NULL,
			text    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_task_activities_task_id ON task_activities(task_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection is alive.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateProject inserts a new project.
func (s *Postgres) CreateProject(ctx context.Context, name, description string) (*models.Project, error) {
	p := &models.Project{Name: name, Description: description}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO projects (name, description) VALUES ($1, $2) RETURNING id, created_at`,
		name, description).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects ordered by id.
func (s *Postgres) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, created_at FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CreateUser inserts a new user.
func (s *Postgres) CreateUser(ctx context.Context, username, email string) (*models.User, error) {
	u := &models.User{Username: username, Email: email}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email) VALUES ($1, $2) RETURNING id, created_at`,
		username, email).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by id.
func (s *Postgres) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, username, email, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListRecentTasks returns at most limit tasks, newest first.
func (s *Postgres) ListRecentTasks(ctx context.Context, limit int) ([]models.Task, error) {
	return pgQueryTasks(ctx, s.pool, `SELECT `+taskColumns+` `+taskJoins+` ORDER BY t.id DESC LIMIT $1`, limit)
}

// ListTasksByProject returns the tasks of one project, oldest first.
func (s *Postgres) ListTasksByProject(ctx context.Context, projectID int64) ([]models.Task, error) {
	return pgQueryTasks(ctx, s.pool, `SELECT `+taskColumns+` `+taskJoins+` WHERE t.project_id = $1 ORDER BY t.id`, projectID)
}

// GetTask retrieves a task with its activity history.
func (s *Postgres) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	task, err := pgTaskByID(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+activityColumns+` FROM task_activities WHERE task_id = $1 ORDER BY created_at DESC, id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.TaskActivity
		if err := rows.Scan(&a.ID, &a.TaskID, &a.UserID, &a.Action, &a.Field, &a.OldValue, &a.NewValue, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		task.Activities = append(task.Activities, a)
	}
	return task, rows.Err()
}

// WithinTx runs fn inside a single database transaction.
func (s *Postgres) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) ProjectExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check project: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertTask(ctx context.Context, task *models.Task) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO tasks (title, description, status, priority, tags, start_date, due_date, points,
			project_id, author_user_id, assigned_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		task.Title, task.Description, string(task.Status), string(task.Priority), task.Tags,
		task.StartDate, task.DueDate, task.Points,
		task.ProjectID, task.AuthorUserID, task.AssignedUserID, task.CreatedAt, task.UpdatedAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (t *pgTx) TaskByID(ctx context.Context, id int64) (*models.Task, error) {
	return pgTaskByID(ctx, t.tx, id)
}

func (t *pgTx) UpdateTask(ctx context.Context, id int64, patch models.TaskPatch, now time.Time) error {
	cols := patchColumns(patch)
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		args = append(args, c.value)
		sets = append(sets, fmt.Sprintf("%s = $%d", c.name, len(args)))
	}
	args = append(args, now)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

func (t *pgTx) InsertActivities(ctx context.Context, acts []models.TaskActivity) error {
	for i := range acts {
		a := &acts[i]
		err := t.tx.QueryRow(ctx, `
			INSERT INTO task_activities (task_id, user_id, action, field, old_value, new_value, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			a.TaskID, a.UserID, a.Action, a.Field, a.OldValue, a.NewValue, a.CreatedAt,
		).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("insert activity %s: %w", a.Field, err)
		}
	}
	return nil
}

func (t *pgTx) DeleteTaskDependents(ctx context.Context, taskID int64) error {
	for _, table := range dependentTables {
		if _, err := t.tx.Exec(ctx, `DELETE FROM `+table+` WHERE task_id = $1`, taskID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

func (t *pgTx) DeleteTask(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgTaskByID(ctx context.Context, q pgQuerier, id int64) (*models.Task, error) {
	task, err := scanPgTask(q.QueryRow(ctx, `SELECT `+taskColumns+` `+taskJoins+` WHERE t.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

func pgQueryTasks(ctx context.Context, q pgQuerier, query string, args ...any) ([]models.Task, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanPgTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func scanPgTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var status, priority string
	err := row.Scan(&task.ID, &task.Title, &task.Description, &status, &priority, &task.Tags,
		&task.StartDate, &task.DueDate, &task.Points, &task.ProjectID, &task.AuthorUserID,
		&task.AssignedUserID, &task.CreatedAt, &task.UpdatedAt,
		&task.ProjectName, &task.AuthorUsername, &task.AssigneeUsername)
	if err != nil {
		return nil, err
	}
	task.Status = models.TaskStatus(status)
	task.Priority = models.TaskPriority(priority)
	return &task, nil
}
