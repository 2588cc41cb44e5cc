package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/taskchat/internal/models"
	_ "modernc.org/sqlite"
)

// SQLite is the embedded Store backed by modernc.org/sqlite.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath and runs migrations.
func NewSQLite(dbPath string) (*SQLite, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		start_date DATETIME,
		due_date DATETIME,
		points INTEGER,
		project_id INTEGER NOT NULL,
		author_user_id INTEGER NOT NULL,
		assigned_user_id INTEGER,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id)
	);

	CREATE TABLE IF NOT EXISTS task_activities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		field TEXT NOT NULL,
		old_value TEXT,
		new_value TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS task_assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		uploaded_by_id INTEGER NOT NULL,
		file_url TEXT NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id);
	CREATE INDEX IF NOT EXISTS idx_task_activities_task_id ON task_activities(task_id);
	CREATE INDEX IF NOT EXISTS idx_comments_task_id ON comments(task_id);
	CREATE INDEX IF NOT EXISTS idx_attachments_task_id ON attachments(task_id);
	CREATE INDEX IF NOT EXISTS idx_task_assignments_task_id ON task_assignments(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Projects and users ---

// CreateProject inserts a new project.
func (s *SQLite) CreateProject(ctx context.Context, name, description string) (*models.Project, error) {
	p := &models.Project{Name: name, Description: description, CreatedAt: time.Now().UTC()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, description, created_at) VALUES (?, ?, ?)`,
		p.Name, p.Description, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("project id: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects ordered by id.
func (s *SQLite) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, created_at FROM projects ORDER BY id`)
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
func (s *SQLite) CreateUser(ctx context.Context, username, email string) (*models.User, error) {
	u := &models.User{Username: username, Email: email, CreatedAt: time.Now().UTC()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, created_at) VALUES (?, ?, ?)`,
		u.Username, u.Email, u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by id.
func (s *SQLite) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, email, created_at FROM users ORDER BY id`)
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

// --- Tasks ---

// ListRecentTasks returns at most limit tasks, newest first.
func (s *SQLite) ListRecentTasks(ctx context.Context, limit int) ([]models.Task, error) {
	return queryTasks(ctx, s.db, `SELECT `+taskColumns+` `+taskJoins+` ORDER BY t.id DESC LIMIT ?`, limit)
}

// ListTasksByProject returns the tasks of one project, oldest first.
func (s *SQLite) ListTasksByProject(ctx context.Context, projectID int64) ([]models.Task, error) {
	return queryTasks(ctx, s.db, `SELECT `+taskColumns+` `+taskJoins+` WHERE t.project_id = ? ORDER BY t.id`, projectID)
}

// GetTask retrieves a task with its activity history.
func (s *SQLite) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	task, err := taskByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM task_activities WHERE task_id = ? ORDER BY created_at DESC, id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.TaskActivity
		var oldValue, newValue sql.NullString
		if err := rows.Scan(&a.ID, &a.TaskID, &a.UserID, &a.Action, &a.Field, &oldValue, &newValue, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if oldValue.Valid {
			a.OldValue = &oldValue.String
		}
		if newValue.Valid {
			a.NewValue = &newValue.String
		}
		task.Activities = append(task.Activities, a)
	}
	return task, rows.Err()
}

// WithinTx runs fn inside a single database transaction.
func (s *SQLite) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) ProjectExists(ctx context.Context, id int64) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check project: %w", err)
	}
	return n > 0, nil
}

func (t *sqliteTx) InsertTask(ctx context.Context, task *models.Task) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO tasks (title, description, status, priority, tags, start_date, due_date, points,
			project_id, author_user_id, assigned_user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.Title, task.Description, string(task.Status), string(task.Priority), task.Tags,
		timeOrNil(task.StartDate), timeOrNil(task.DueDate), intOrNil(task.Points),
		task.ProjectID, task.AuthorUserID, int64OrNil(task.AssignedUserID), task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if task.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	return nil
}

func (t *sqliteTx) TaskByID(ctx context.Context, id int64) (*models.Task, error) {
	return taskByID(ctx, t.tx, id)
}

func (t *sqliteTx) UpdateTask(ctx context.Context, id int64, patch models.TaskPatch, now time.Time) error {
	cols := patchColumns(patch)
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		sets = append(sets, c.name+" = ?")
		args = append(args, c.value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now, id)

	res, err := t.tx.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) InsertActivities(ctx context.Context, acts []models.TaskActivity) error {
	for i := range acts {
		a := &acts[i]
		res, err := t.tx.ExecContext(ctx,
			`INSERT INTO task_activities (task_id, user_id, action, field, old_value, new_value, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.TaskID, a.UserID, a.Action, a.Field, stringOrNil(a.OldValue), stringOrNil(a.NewValue), a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert activity %s: %w", a.Field, err)
		}
		if a.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("activity id: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) DeleteTaskDependents(ctx context.Context, taskID int64) error {
	for _, table := range dependentTables {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE task_id = ?`, taskID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

func (t *sqliteTx) DeleteTask(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func taskByID(ctx context.Context, q sqlQuerier, id int64) (*models.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` `+taskJoins+` WHERE t.id = ?`, id)
	task, err := scanSQLiteTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

func queryTasks(ctx context.Context, q sqlQuerier, query string, args ...any) ([]models.Task, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func scanSQLiteTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var status, priority string
	var startDate, dueDate sql.NullTime
	var points, assigned sql.NullInt64

	err := row.Scan(&task.ID, &task.Title, &task.Description, &status, &priority, &task.Tags,
		&startDate, &dueDate, &points, &task.ProjectID, &task.AuthorUserID,
		&assigned, &task.CreatedAt, &task.UpdatedAt,
		&task.ProjectName, &task.AuthorUsername, &task.AssigneeUsername)
	if err != nil {
		return nil, err
	}
	task.Status = models.TaskStatus(status)
	task.Priority = models.TaskPriority(priority)
	if startDate.Valid {
		task.StartDate = &startDate.Time
	}
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	if points.Valid {
		p := int(points.Int64)
		task.Points = &p
	}
	if assigned.Valid {
		task.AssignedUserID = &assigned.Int64
	}
	return &task, nil
}

func stringOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
