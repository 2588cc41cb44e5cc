// Package resolver maps human references in an intent (usernames, project
// names) to store identifiers.
package resolver

import (
	"math/rand/v2"
	"strings"

	"github.com/fentz26/taskchat/internal/failure"
	"github.com/fentz26/taskchat/internal/models"
)

// Unassigned is the placeholder assignee meaning "nobody".
const Unassigned = "Unassigned"

// MsgNoProject is shown when a task cannot be created for lack of any project.
const MsgNoProject = "No valid project found. Create a project first before adding tasks."

// Directory is an immutable name index over one snapshot. Matching is exact
// and case-insensitive; there is no fuzzy matching and nothing is created.
type Directory struct {
	users      map[string]int64
	projects   map[string]int64
	usernames  []string
	projectIDs []int64
}

// NewDirectory indexes users and projects. When two entries share a name
// ignoring case, the first one wins.
func NewDirectory(projects []models.Project, users []models.User) *Directory {
	d := &Directory{
		users:    make(map[string]int64, len(users)),
		projects: make(map[string]int64, len(projects)),
	}
	for _, u := range users {
		key := normalize(u.Username)
		if _, dup := d.users[key]; !dup {
			d.users[key] = u.ID
		}
		d.usernames = append(d.usernames, u.Username)
	}
	for _, p := range projects {
		key := normalize(p.Name)
		if _, dup := d.projects[key]; !dup {
			d.projects[key] = p.ID
		}
		d.projectIDs = append(d.projectIDs, p.ID)
	}
	return d
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ResolveUser returns the id of the user named name.
func (d *Directory) ResolveUser(name string) (int64, bool) {
	if normalize(name) == "" {
		return 0, false
	}
	id, ok := d.users[normalize(name)]
	return id, ok
}

// ResolveProject returns the id of the project named name.
func (d *Directory) ResolveProject(name string) (int64, bool) {
	if normalize(name) == "" {
		return 0, false
	}
	id, ok := d.projects[normalize(name)]
	return id, ok
}

// Usernames returns every known username in snapshot order.
func (d *Directory) Usernames() []string {
	return append([]string(nil), d.usernames...)
}

// UserID applies id-over-name precedence: an explicit id wins, the name is
// consulted only when the id is absent.
func (d *Directory) UserID(id *int64, name string) (int64, bool) {
	if id != nil {
		return *id, true
	}
	return d.ResolveUser(name)
}

// ProjectID applies the same precedence for projects.
func (d *Directory) ProjectID(id *int64, name string) (int64, bool) {
	if id != nil {
		return *id, true
	}
	return d.ResolveProject(name)
}

// ProjectForCreate picks the project a new task goes into: the explicit id,
// then the named project, then the caller's current project, then a uniformly
// random existing project. With no projects at all it fails validation.
func (d *Directory) ProjectForCreate(id *int64, name string, current *int64, rng *rand.Rand) (int64, error) {
	if pid, ok := d.ProjectID(id, name); ok {
		return pid, nil
	}
	if current != nil {
		return *current, nil
	}
	if len(d.projectIDs) == 0 {
		return 0, failure.New(failure.ErrValidation, MsgNoProject)
	}
	return d.projectIDs[rng.IntN(len(d.projectIDs))], nil
}
