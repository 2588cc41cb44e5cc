// Package models defines the core domain types for taskchat.
package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date form used in prompts, intents and audit values.
const DateLayout = "2006-01-02"

// TaskStatus represents the workflow column a task sits in.
type TaskStatus string

const (
	StatusToDo        TaskStatus = "To Do"
	StatusInProgress  TaskStatus = "Work In Progress"
	StatusUnderReview TaskStatus = "Under Review"
	StatusCompleted   TaskStatus = "Completed"
)

// Statuses lists the canonical statuses in board order.
var Statuses = []TaskStatus{StatusToDo, StatusInProgress, StatusUnderReview, StatusCompleted}

// TaskPriority represents how urgent a task is.
type TaskPriority string

const (
	PriorityUrgent  TaskPriority = "Urgent"
	PriorityHigh    TaskPriority = "High"
	PriorityMedium  TaskPriority = "Medium"
	PriorityLow     TaskPriority = "Low"
	PriorityBacklog TaskPriority = "Backlog"
)

// Priorities lists the canonical priorities from most to least urgent.
var Priorities = []TaskPriority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow, PriorityBacklog}

var statusAliases = map[string]TaskStatus{
	"todo":           StatusToDo,
	"open":           StatusToDo,
	"inprogress":     StatusInProgress,
	"workinprogress": StatusInProgress,
	"wip":            StatusInProgress,
	"doing":          StatusInProgress,
	"underreview":    StatusUnderReview,
	"review":         StatusUnderReview,
	"inreview":       StatusUnderReview,
	"completed":      StatusCompleted,
	"complete":       StatusCompleted,
	"done":           StatusCompleted,
	"finished":       StatusCompleted,
}

// NormalizeStatus maps loose spellings ("ToDo", "in progress", "done") to the
// canonical label. Unknown values are returned trimmed but otherwise untouched.
func NormalizeStatus(s string) TaskStatus {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if st, ok := statusAliases[squash(s)]; ok {
		return st
	}
	return TaskStatus(s)
}

// NormalizePriority maps a priority case-insensitively to its canonical label.
func NormalizePriority(s string) TaskPriority {
	s = strings.TrimSpace(s)
	for _, p := range Priorities {
		if strings.EqualFold(s, string(p)) {
			return p
		}
	}
	return TaskPriority(s)
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == ' ' || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Project groups tasks.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// User is a person tasks can be authored by or assigned to.
type User struct {
	ID        int64     `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Task represents a unit of work on a project board.
type Task struct {
	ID             int64        `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Status         TaskStatus   `json:"status"`
	Priority       TaskPriority `json:"priority"`
	Tags           string       `json:"tags"` // comma-separated
	StartDate      *time.Time   `json:"startDate,omitempty"`
	DueDate        *time.Time   `json:"dueDate,omitempty"`
	Points         *int         `json:"points,omitempty"`
	ProjectID      int64        `json:"projectId"`
	AuthorUserID   int64        `json:"authorUserId"`
	AssignedUserID *int64       `json:"assignedUserId,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`

	// Joined on read.
	ProjectName      string         `json:"projectName,omitempty"`
	AuthorUsername   string         `json:"authorUsername,omitempty"`
	AssigneeUsername string         `json:"assigneeUsername,omitempty"`
	Activities       []TaskActivity `json:"activities,omitempty"`
}

// TaskActivity is one audited field change on a task.
type TaskActivity struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"taskId"`
	UserID    int64     `json:"userId"`
	Action    string    `json:"action"`
	Field     string    `json:"field"`
	OldValue  *string   `json:"oldValue"`
	NewValue  *string   `json:"newValue"`
	CreatedAt time.Time `json:"createdAt"`
}

// Opt is a tri-state patch value: absent, explicitly null, or set to Value.
type Opt[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns an Opt holding v.
func Some[T any](v T) Opt[T] { return Opt[T]{Set: true, Value: v} }

// None returns an Opt that clears the field.
func None[T any]() Opt[T] { return Opt[T]{Set: true, Null: true} }

// Ptr returns nil for a null value, otherwise a pointer to Value.
func (o Opt[T]) Ptr() *T {
	if !o.Set || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// TaskPatch carries the fields of an update. Only fields with Set are written.
type TaskPatch struct {
	Title          Opt[string]
	Description    Opt[string]
	Status         Opt[TaskStatus]
	Priority       Opt[TaskPriority]
	Tags           Opt[string]
	StartDate      Opt[time.Time]
	DueDate        Opt[time.Time]
	Points         Opt[int]
	AssignedUserID Opt[int64]
	ProjectID      Opt[int64]
}

// Fields returns the names of the set fields in a stable order.
func (p TaskPatch) Fields() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.Title.Set, "title")
	add(p.Description.Set, "description")
	add(p.Status.Set, "status")
	add(p.Priority.Set, "priority")
	add(p.Tags.Set, "tags")
	add(p.StartDate.Set, "startDate")
	add(p.DueDate.Set, "dueDate")
	add(p.Points.Set, "points")
	add(p.AssignedUserID.Set, "assignedUserId")
	add(p.ProjectID.Set, "projectId")
	return out
}

// Empty reports whether the patch would change nothing.
func (p TaskPatch) Empty() bool { return len(p.Fields()) == 0 }

// FormatDate renders t as YYYY-MM-DD, or "" when nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the
// calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: want YYYY-MM-DD", s)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
