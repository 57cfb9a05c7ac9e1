package api

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/pyros-projects/clawde/internal/beads"
	"github.com/pyros-projects/clawde/internal/task"
	"github.com/pyros-projects/clawde/pkg/cerr"
)

var taskIDPattern = regexp.MustCompile(`(?i)^[a-z0-9-]+$`)

// GetProject returns the project context and agents of the current
// snapshot.
func (s *Server) GetProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := s.ensureState(ctx)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to discover project", err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{
		"project": state.Project,
		"agents":  state.Agents,
	})
}

// ListTasks returns the task list of the current snapshot, optionally
// filtered to ready tasks.
func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := s.ensureState(ctx)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to load tasks", err)
		return
	}
	tasks := state.Tasks
	if r.URL.Query().Get("ready") == "true" {
		tasks = task.Ready(tasks)
	}
	cerr.SetJSONResponse(ctx, map[string]any{"tasks": tasks})
}

// GetTask returns one task from the current snapshot.
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if !taskIDPattern.MatchString(id) {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid task id format", nil)
		return
	}
	state, err := s.ensureState(ctx)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to load task", err)
		return
	}
	for _, t := range state.Tasks {
		if t.ID == id {
			cerr.SetJSONResponse(ctx, map[string]any{"task": t})
			return
		}
	}
	cerr.SetNewJSONError(ctx, cerr.NotFound, "task "+id+" not found", nil)
}

type updateTaskRequest struct {
	Assignee *string `json:"assignee"`
	Status   *string `json:"status"`
	Priority *string `json:"priority"`
	Title    *string `json:"title"`
}

// UpdateTask patches task fields through the tracker CLI. The watcher
// picks up the resulting state change and refreshes the snapshot.
func (s *Server) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if !taskIDPattern.MatchString(id) {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid task id format", nil)
		return
	}

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}

	state, err := s.ensureState(ctx)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to load project", err)
		return
	}
	if !state.Project.HasBeads {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "task tracker not initialized in this project", nil)
		return
	}

	fields := beads.UpdateFields{
		Assignee: req.Assignee,
		Priority: req.Priority,
		Title:    req.Title,
	}
	if req.Status != nil {
		st := task.ParseStatus(*req.Status)
		fields.Status = &st
	}

	updated, err := s.coord.Beads().Update(ctx, id, fields)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{
		"success": true,
		"taskId":  id,
		"task":    updated,
	})
}
