// Package intent defines the structured request extracted from a chat message
// and the tolerant parser that recovers it from model output.
package intent

import (
	"strings"

	"github.com/fentz26/taskchat/internal/models"
)

// Action is the mutation an intent asks for.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

var actionSynonyms = map[string]Action{
	"create": ActionCreate,
	"add":    ActionCreate,
	"new":    ActionCreate,
	"make":   ActionCreate,
	"update": ActionUpdate,
	"edit":   ActionUpdate,
	"modify": ActionUpdate,
	"change": ActionUpdate,
	"assign": ActionUpdate,
	"delete": ActionDelete,
	"remove": ActionDelete,
}

// NormalizeAction lower-cases a and maps synonyms. Empty and unknown values
// default to create.
func NormalizeAction(a string) Action {
	if act, ok := actionSynonyms[strings.ToLower(strings.TrimSpace(a))]; ok {
		return act
	}
	return ActionCreate
}

// Intent is what the user asked for in one turn. Dates are kept as the
// YYYY-MM-DD strings the model produced; they are parsed at execution time.
type Intent struct {
	Action             Action              `json:"action"`
	TaskID             *int64              `json:"taskId"`
	ProjectID          *int64              `json:"projectId"`
	ProjectName        string              `json:"projectName,omitempty"`
	Title              string              `json:"title,omitempty"`
	Description        string              `json:"description,omitempty"`
	Status             models.TaskStatus   `json:"status,omitempty"`
	Priority           models.TaskPriority `json:"priority,omitempty"`
	Tags               string              `json:"tags,omitempty"`
	StartDate          string              `json:"startDate,omitempty"`
	DueDate            string              `json:"dueDate,omitempty"`
	Assignee           string              `json:"assignee,omitempty"`
	AssigneeUserID     *int64              `json:"assigneeUserId"`
	UpdatedFields      map[string]any      `json:"updatedFields,omitempty"`
	DeleteReason       string              `json:"deleteReason,omitempty"`
	NeedsClarification bool                `json:"needsClarification"`
	FollowUpQuestion   string              `json:"followUpQuestion,omitempty"`
}

// Neutral is the intent returned when nothing could be recovered.
func Neutral() Intent {
	return Intent{}
}

// Field returns the named creation field as a string, used for required-field
// checks and auto-fill.
func (in Intent) Field(name string) string {
	switch name {
	case "title":
		return in.Title
	case "description":
		return in.Description
	case "status":
		return string(in.Status)
	case "priority":
		return string(in.Priority)
	case "tags":
		return in.Tags
	case "startDate":
		return in.StartDate
	case "dueDate":
		return in.DueDate
	case "assignee":
		return in.Assignee
	}
	return ""
}
