// Package audit derives field-level activity records from task updates.
package audit

import (
	"strconv"
	"time"

	"github.com/fentz26/taskchat/internal/models"
)

// TrackedFields lists the audited fields in emission order. Title and
// description are applied by updates but never audited.
var TrackedFields = []string{"status", "priority", "assignee", "due_date", "start_date", "points", "tags"}

// change is one tracked field's before/after pair; nil means null.
type change struct {
	field    string
	old, new *string
}

// Diff compares before against the set fields of patch and returns one
// activity per tracked field whose stringified value changed. Null and the
// empty string compare equal.
func Diff(before models.Task, patch models.TaskPatch, actorID int64, now time.Time) []models.TaskActivity {
	var changes []change
	if patch.Status.Set {
		changes = append(changes, change{"status", str(string(before.Status)), optStr(patch.Status, func(s models.TaskStatus) string { return string(s) })})
	}
	if patch.Priority.Set {
		changes = append(changes, change{"priority", str(string(before.Priority)), optStr(patch.Priority, func(p models.TaskPriority) string { return string(p) })})
	}
	if patch.AssignedUserID.Set {
		changes = append(changes, change{"assignee", idStr(before.AssignedUserID), optStr(patch.AssignedUserID, formatID)})
	}
	if patch.DueDate.Set {
		changes = append(changes, change{"due_date", dateStr(before.DueDate), optStr(patch.DueDate, formatDate)})
	}
	if patch.StartDate.Set {
		changes = append(changes, change{"start_date", dateStr(before.StartDate), optStr(patch.StartDate, formatDate)})
	}
	if patch.Points.Set {
		changes = append(changes, change{"points", pointsStr(before.Points), optStr(patch.Points, strconv.Itoa)})
	}
	if patch.Tags.Set {
		changes = append(changes, change{"tags", str(before.Tags), optStr(patch.Tags, func(s string) string { return s })})
	}

	var acts []models.TaskActivity
	for _, c := range changes {
		if deref(c.old) == deref(c.new) {
			continue
		}
		acts = append(acts, models.TaskActivity{
			TaskID:    before.ID,
			UserID:    actorID,
			Action:    c.field + "_changed",
			Field:     c.field,
			OldValue:  c.old,
			NewValue:  c.new,
			CreatedAt: now,
		})
	}
	return acts
}

func optStr[T any](o models.Opt[T], format func(T) string) *string {
	if o.Null {
		return nil
	}
	s := format(o.Value)
	return &s
}

func str(s string) *string {
	return &s
}

func idStr(id *int64) *string {
	if id == nil {
		return nil
	}
	s := formatID(*id)
	return &s
}

func dateStr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

func pointsStr(p *int) *string {
	if p == nil {
		return nil
	}
	s := strconv.Itoa(*p)
	return &s
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func formatDate(t time.Time) string { return t.Format(models.DateLayout) }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
