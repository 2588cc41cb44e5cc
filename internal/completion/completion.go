// Package completion detects missing creation fields and fills them from
// fixed vocabularies using an injected random source.
package completion

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/fentz26/taskchat/internal/intent"
	"github.com/fentz26/taskchat/internal/models"
)

// RequiredFields are the fields a create intent must carry before execution.
var RequiredFields = []string{"title", "description", "status", "priority", "tags", "startDate", "dueDate", "assignee"}

// Vocabulary is the set of values auto-fill draws from.
type Vocabulary struct {
	Titles       []string
	Descriptions []string
	Statuses     []models.TaskStatus
	Priorities   []models.TaskPriority
	Tags         []string
}

// DefaultVocabulary is the built-in sample set.
var DefaultVocabulary = Vocabulary{
	Titles: []string{
		"Review Q4 Budget",
		"Design Landing Page",
		"Fix Login Bug",
		"Prepare Sprint Demo",
		"Update Documentation",
		"Plan Team Meeting",
		"Optimize Database",
		"Write Unit Tests",
		"Refactor API",
		"Research New Tools",
	},
	Descriptions: []string{
		"This task was generated automatically.",
		"Please update as needed.",
		"Randomly assigned for demo purposes.",
		"No description provided.",
		"Auto-generated task.",
	},
	Statuses:   models.Statuses,
	Priorities: models.Priorities,
	Tags: []string{
		"frontend,urgent",
		"backend,api",
		"meeting,planning",
		"bug,critical",
		"documentation",
		"research",
		"review",
		"testing",
		"refactor",
		"feature",
	},
}

// Options controls date generation. Dates are Now + offset + [0, SpreadDays).
type Options struct {
	Now             time.Time
	StartOffsetDays int
	DueOffsetDays   int
	SpreadDays      int
	Vocabulary      *Vocabulary
}

// DefaultOptions starts tasks around five days ago and makes them due around
// five days from now.
func DefaultOptions(now time.Time) Options {
	return Options{Now: now, StartOffsetDays: -5, DueOffsetDays: 5, SpreadDays: 10}
}

// MissingFields returns the required fields that are absent or blank, in
// RequiredFields order.
func MissingFields(in intent.Intent) []string {
	var missing []string
	for _, f := range RequiredFields {
		if strings.TrimSpace(in.Field(f)) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Fill returns a copy of in with every missing required field populated.
// Present fields are left alone. The assignee is a random known username, or
// "Unassigned" when there are none. Fill is deterministic for a given rng
// state.
func Fill(in intent.Intent, usernames []string, rng *rand.Rand, opts Options) intent.Intent {
	v := opts.Vocabulary
	if v == nil {
		v = &DefaultVocabulary
	}
	out := in
	for _, f := range MissingFields(in) {
		switch f {
		case "title":
			out.Title = pick(rng, v.Titles)
		case "description":
			out.Description = pick(rng, v.Descriptions)
		case "status":
			out.Status = pick(rng, v.Statuses)
		case "priority":
			out.Priority = pick(rng, v.Priorities)
		case "tags":
			out.Tags = pick(rng, v.Tags)
		case "startDate":
			out.StartDate = randomDate(rng, opts.Now, opts.StartOffsetDays, opts.SpreadDays)
		case "dueDate":
			out.DueDate = randomDate(rng, opts.Now, opts.DueOffsetDays, opts.SpreadDays)
		case "assignee":
			if len(usernames) == 0 {
				out.Assignee = "Unassigned"
			} else {
				out.Assignee = pick(rng, usernames)
			}
		}
	}
	return out
}

func pick[T any](rng *rand.Rand, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[rng.IntN(len(items))]
}

func randomDate(rng *rand.Rand, now time.Time, offset, spread int) string {
	days := offset
	if spread > 0 {
		days += rng.IntN(spread)
	}
	return now.AddDate(0, 0, days).Format(models.DateLayout)
}
