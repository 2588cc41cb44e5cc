package engine

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/taskchat/internal/executor"
	"github.com/fentz26/taskchat/internal/failure"
	"github.com/fentz26/taskchat/internal/intent"
	"github.com/fentz26/taskchat/internal/models"
	"github.com/fentz26/taskchat/internal/resolver"
)

func isUnassigned(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || strings.EqualFold(name, resolver.Unassigned)
}

// fieldKey folds the spellings models use for update keys ("due_date",
// "DueDate", "dueDate") onto one form.
func fieldKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(k), "_", ""))
}

// buildPatch turns the model's updatedFields map into a typed patch.
// Unknown keys and names that resolve to nobody are dropped. An explicit
// null clears the field.
func buildPatch(fields map[string]any, dir *resolver.Directory) (models.TaskPatch, error) {
	var p models.TaskPatch
	norm := make(map[string]any, len(fields))
	for k, v := range fields {
		norm[fieldKey(k)] = v
	}

	if v, ok := norm["title"]; ok {
		p.Title = models.Some(intent.AsString(v))
	}
	if v, ok := norm["description"]; ok {
		p.Description = models.Some(intent.AsString(v))
	}
	if v, ok := norm["status"]; ok {
		if s := models.NormalizeStatus(intent.AsString(v)); s != "" {
			p.Status = models.Some(s)
		}
	}
	if v, ok := norm["priority"]; ok {
		if pr := models.NormalizePriority(intent.AsString(v)); pr != "" {
			p.Priority = models.Some(pr)
		}
	}
	if v, ok := norm["tags"]; ok {
		p.Tags = models.Some(intent.AsTags(v))
	}

	for key, dst := range map[string]*models.Opt[time.Time]{"startdate": &p.StartDate, "duedate": &p.DueDate} {
		v, ok := norm[key]
		if !ok {
			continue
		}
		s := intent.AsString(v)
		if v == nil || s == "" {
			*dst = models.None[time.Time]()
			continue
		}
		d, err := models.ParseDate(s)
		if err != nil {
			return p, failure.Newf(failure.ErrValidation, "Invalid date %q. Use YYYY-MM-DD.", s)
		}
		*dst = models.Some(d)
	}

	if v, ok := norm["points"]; ok {
		s := intent.AsString(v)
		if v == nil || s == "" {
			p.Points = models.None[int]()
		} else {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				return p, failure.Newf(failure.ErrValidation, "Invalid points value %q.", s)
			}
			p.Points = models.Some(n)
		}
	}

	if opt, ok := assigneePatch(norm, dir); ok {
		p.AssignedUserID = opt
	}

	if v, ok := norm["projectid"]; ok {
		if id := intent.AsID(v); id != nil {
			p.ProjectID = models.Some(*id)
		}
	} else if v, ok := norm["projectname"]; ok {
		if id, found := dir.ResolveProject(intent.AsString(v)); found {
			p.ProjectID = models.Some(id)
		}
	}
	return p, nil
}

// assigneePatch resolves the assignee from an id key, which wins, or from a
// name. "Unassigned", blank and null clear the assignment.
func assigneePatch(norm map[string]any, dir *resolver.Directory) (models.Opt[int64], bool) {
	for _, key := range []string{"assigneeuserid", "assigneduserid"} {
		v, ok := norm[key]
		if !ok {
			continue
		}
		if v == nil {
			return models.None[int64](), true
		}
		if id := intent.AsID(v); id != nil {
			return models.Some(*id), true
		}
	}
	for _, key := range []string{"assignee", "assignedto", "assigneeusername"} {
		v, ok := norm[key]
		if !ok {
			continue
		}
		name := intent.AsString(v)
		if v == nil || isUnassigned(name) {
			return models.None[int64](), true
		}
		if id, found := dir.ResolveUser(name); found {
			return models.Some(id), true
		}
		return models.Opt[int64]{}, false
	}
	return models.Opt[int64]{}, false
}

// buildCreate resolves a create intent into executor input.
func buildCreate(in intent.Intent, dir *resolver.Directory, req ConfirmRequest, rng *rand.Rand) (executor.CreateInput, error) {
	out := executor.CreateInput{
		Title:        in.Title,
		Description:  in.Description,
		Status:       models.NormalizeStatus(string(in.Status)),
		Priority:     models.NormalizePriority(string(in.Priority)),
		Tags:         in.Tags,
		AuthorUserID: req.ActorUserID,
	}
	if out.Status == "" {
		out.Status = models.StatusToDo
	}
	if out.Priority == "" {
		out.Priority = models.PriorityMedium
	}

	var err error
	if out.StartDate, err = optionalDate(in.StartDate); err != nil {
		return out, err
	}
	if out.DueDate, err = optionalDate(in.DueDate); err != nil {
		return out, err
	}

	if out.ProjectID, err = dir.ProjectForCreate(in.ProjectID, in.ProjectName, req.CurrentProjectID, rng); err != nil {
		return out, err
	}

	if in.AssigneeUserID != nil {
		id := *in.AssigneeUserID
		out.AssignedUserID = &id
	} else if !isUnassigned(in.Assignee) {
		if id, ok := dir.UserID(nil, in.Assignee); ok {
			out.AssignedUserID = &id
		}
	}
	return out, nil
}

func optionalDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return nil, failure.Newf(failure.ErrValidation, "Invalid date %q. Use YYYY-MM-DD.", s)
	}
	return &d, nil
}
