package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/pyros-projects/clawde/internal/openspec"
	"github.com/pyros-projects/clawde/pkg/cerr"
)

type seedRequest struct {
	DryRun bool   `json:"dryRun"`
	Prefix string `json:"prefix"`
}

// SeedChange imports a change's tasks.md plan into the task tracker.
// Per-item failures do not roll back already created tasks: the response
// carries the created count and an explicit error list.
func (s *Server) SeedChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req seedRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	state, err := s.ensureState(ctx)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to load project", err)
		return
	}

	id, dir, err := resolveChangeDir(state.Project.Root, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	raw, err := os.ReadFile(filepath.Join(dir, "tasks.md"))
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.NotFound, fmt.Sprintf("no tasks.md found for change %q, run /plan first", id), err)
		return
	}

	tasks := openspec.ParseTasks(string(raw))
	if len(tasks) == 0 {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "no tasks found in tasks.md", nil)
		return
	}
	if !state.Project.HasBeads {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "task tracker not initialized in this project, run bd init first", nil)
		return
	}

	prefix := req.Prefix
	if prefix == "" {
		prefix = id
		if len(prefix) > 10 {
			prefix = prefix[:10]
		}
	}

	if req.DryRun {
		preview := make([]map[string]any, 0, len(tasks))
		for _, t := range tasks {
			deps := make([]string, 0, len(t.Deps))
			for _, d := range t.Deps {
				deps = append(deps, prefix+"-"+d)
			}
			preview = append(preview, map[string]any{
				"id":    prefix + "-" + t.ID,
				"title": t.Title,
				"deps":  deps,
				"phase": t.Phase,
			})
		}
		cerr.SetJSONResponse(ctx, map[string]any{
			"success":  true,
			"dryRun":   true,
			"changeId": id,
			"tasks":    preview,
			"message":  fmt.Sprintf("Would create %d tasks (dry run)", len(tasks)),
		})
		return
	}

	tracker := s.coord.Beads()
	created := 0
	var errs []string
	idMap := map[string]string{}

	for _, t := range tasks {
		trackerID, err := tracker.Create(ctx, t.Title)
		if err != nil {
			errs = append(errs, fmt.Sprintf("failed to create %s: %v", t.ID, err))
			continue
		}
		idMap[t.ID] = trackerID
		created++
	}

	depsCreated := 0
	for _, t := range tasks {
		trackerID, ok := idMap[t.ID]
		if !ok {
			continue
		}
		for _, dep := range t.Deps {
			depTrackerID, ok := idMap[dep]
			if !ok {
				errs = append(errs, fmt.Sprintf("dep %s not found for %s", dep, t.ID))
				continue
			}
			if err := tracker.AddDependency(ctx, trackerID, depTrackerID); err != nil {
				errs = append(errs, fmt.Sprintf("failed to add dep %s -> %s: %v", t.ID, dep, err))
				continue
			}
			depsCreated++
		}
	}

	msg := fmt.Sprintf("Created %d tasks with %d dependencies", created, depsCreated)
	if len(errs) > 0 {
		msg += fmt.Sprintf(" (%d errors)", len(errs))
	}
	cerr.SetJSONResponse(ctx, map[string]any{
		"success":      len(errs) == 0,
		"changeId":     id,
		"created":      created,
		"dependencies": depsCreated,
		"taskIds":      idMap,
		"errors":       errs,
		"message":      msg,
	})
}
