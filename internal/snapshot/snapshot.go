// Package snapshot assembles the grounding context handed to the model: the
// known projects, users and most recent tasks.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/taskchat/internal/models"
	"github.com/fentz26/taskchat/internal/store"
)

// DefaultTaskLimit caps the recent tasks included in a snapshot.
const DefaultTaskLimit = 40

// Snapshot is a read-only view of the store at the start of a turn.
type Snapshot struct {
	Projects []models.Project
	Users    []models.User
	Tasks    []models.Task
	TakenAt  time.Time
}

// Builder reads snapshots from a store.
type Builder struct {
	store store.Reader
	limit int
}

// NewBuilder returns a Builder including at most limit recent tasks.
func NewBuilder(r store.Reader, limit int) *Builder {
	if limit <= 0 {
		limit = DefaultTaskLimit
	}
	return &Builder{store: r, limit: limit}
}

// Build reads projects, users and recent tasks. Any read error fails the build.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	projects, err := b.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	users, err := b.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	tasks, err := b.store.ListRecentTasks(ctx, b.limit)
	if err != nil {
		return nil, fmt.Errorf("list recent tasks: %w", err)
	}
	return &Snapshot{Projects: projects, Users: users, Tasks: tasks, TakenAt: time.Now().UTC()}, nil
}

type projectRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type userRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type taskRef struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	ProjectID      int64  `json:"projectId"`
	ProjectName    string `json:"projectName"`
	Status         string `json:"status"`
	Priority       string `json:"priority"`
	Tags           string `json:"tags"`
	StartDate      string `json:"startDate"`
	DueDate        string `json:"dueDate"`
	Assignee       string `json:"assignee"`
	AssigneeUserID *int64 `json:"assigneeUserId"`
}

// Render serializes the snapshot for embedding in a prompt. Free text is JSON
// encoded, so quotes and newlines in titles cannot break the prompt layout.
func (s *Snapshot) Render() string {
	projects := make([]projectRef, 0, len(s.Projects))
	for _, p := range s.Projects {
		projects = append(projects, projectRef{ID: p.ID, Name: p.Name})
	}
	users := make([]userRef, 0, len(s.Users))
	for _, u := range s.Users {
		users = append(users, userRef{ID: u.ID, Username: u.Username})
	}
	tasks := make([]taskRef, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		tasks = append(tasks, taskRef{
			ID:             t.ID,
			Title:          t.Title,
			Description:    t.Description,
			ProjectID:      t.ProjectID,
			ProjectName:    t.ProjectName,
			Status:         string(t.Status),
			Priority:       string(t.Priority),
			Tags:           t.Tags,
			StartDate:      models.FormatDate(t.StartDate),
			DueDate:        models.FormatDate(t.DueDate),
			Assignee:       t.AssigneeUsername,
			AssigneeUserID: t.AssignedUserID,
		})
	}

	var b strings.Builder
	section(&b, "PROJECTS", projects)
	section(&b, "USERS", users)
	section(&b, "RECENT TASKS", tasks)
	return strings.TrimRight(b.String(), "\n")
}

func section(b *strings.Builder, title string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		// Plain structs of strings and ints always marshal.
		data = []byte("[]")
	}
	b.WriteString(title)
	b.WriteString(":\n")
	b.Write(data)
	b.WriteString("\n\n")
}
