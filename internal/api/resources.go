package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/fentz26/taskchat/internal/engine"
	"github.com/fentz26/taskchat/internal/failure"
	"github.com/fentz26/taskchat/internal/intent"
	"github.com/fentz26/taskchat/internal/models"
	"github.com/fentz26/taskchat/internal/store"
)

// --- Projects ---

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.writeFailure(w, failure.Wrap(failure.ErrStore, "", err))
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	p, err := s.store.CreateProject(r.Context(), strings.TrimSpace(req.Name), req.Description)
	if err != nil {
		s.writeFailure(w, failure.Wrap(failure.ErrStore, "", err))
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// --- Users ---

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeFailure(w, failure.Wrap(failure.ErrStore, "", err))
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	u, err := s.store.CreateUser(r.Context(), strings.TrimSpace(req.Username), req.Email)
	if err != nil {
		s.writeFailure(w, failure.Wrap(failure.ErrStore, "", err))
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// --- Tasks ---

const defaultTaskListLimit = 50

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []models.Task
		err   error
	)
	if raw := r.URL.Query().Get("projectId"); raw != "" {
		pid, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "projectId must be a number")
			return
		}
		tasks, err = s.store.ListTasksByProject(r.Context(), pid)
	} else {
		limit := defaultTaskListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, cerr := strconv.Atoi(raw); cerr == nil && n > 0 {
				limit = n
			}
		}
		tasks, err = s.store.ListRecentTasks(r.Context(), limit)
	}
	if err != nil {
		s.writeFailure(w, failure.Wrap(failure.ErrStore, "", err))
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "task id must be a positive number")
		return
	}
	task, err := s.store.GetTask(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.writeFailure(w, failure.Wrap(failure.ErrStore, "", err))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type updateTaskRequest struct {
	ActorUserID int64          `json:"actorUserId"`
	Fields      map[string]any `json:"fields"`
}

// handleTaskUpdate runs the same audited update a confirmed chat turn does.
func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "task id must be a positive number")
		return
	}
	var req updateTaskRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	out, err := s.engine.Confirm(r.Context(), engine.ConfirmRequest{
		Intent:      intent.Intent{Action: intent.ActionUpdate, TaskID: &id, UpdatedFields: req.Fields},
		ActorUserID: req.ActorUserID,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTaskDelete takes the acting user from ?actorUserId=.
func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "task id must be a positive number")
		return
	}
	actor, _ := strconv.ParseInt(r.URL.Query().Get("actorUserId"), 10, 64)
	out, err := s.engine.Confirm(r.Context(), engine.ConfirmRequest{
		Intent:      intent.Intent{Action: intent.ActionDelete, TaskID: &id},
		ActorUserID: actor,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
