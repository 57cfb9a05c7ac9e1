package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pyros-projects/clawde/internal/change"
	"github.com/pyros-projects/clawde/pkg/cerr"
)

// ListChanges returns the change list of the current snapshot.
func (s *Server) ListChanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := s.ensureState(ctx)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to list changes", err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"changes": state.Changes})
}

type createChangeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateChange scaffolds a new change directory with a proposal stub.
// The watcher detects the new files and triggers the refresh.
func (s *Server) CreateChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.Name == "" || req.Description == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "missing name or description", nil)
		return
	}

	state, err := s.ensureState(ctx)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to load project", err)
		return
	}

	id := change.SanitizeID(req.Name)
	if id == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid change name", nil)
		return
	}

	changeDir := filepath.Join(state.Project.Root, "openspec", "changes", id)
	if _, err := os.Stat(changeDir); err == nil {
		cerr.SetNewJSONError(ctx, cerr.AlreadyExists, fmt.Sprintf("change %q already exists", id), nil)
		return
	}
	if err := os.MkdirAll(changeDir, 0755); err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to create change directory", err)
		return
	}
	if err := os.WriteFile(filepath.Join(changeDir, "proposal.md"), []byte(proposalStub(id, req.Description)), 0644); err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to write proposal", err)
		return
	}

	cerr.SetJSONResponse(ctx, map[string]any{
		"success":  true,
		"changeId": id,
		"path":     changeDir,
		"message":  "Created change: " + id,
	})
}

func proposalStub(id, description string) string {
	date := time.Now().Format("2006-01-02")
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", id)
	fmt.Fprintf(&b, "**Status:** Active\n**Created:** %s\n\n", date)
	fmt.Fprintf(&b, "## Summary\n\n%s\n\n", description)
	b.WriteString("## Motivation\n\n_Why is this change needed? What problem does it solve?_\n\n")
	b.WriteString("## Proposed Solution\n\n_High-level description of what will be built._\n\n")
	fmt.Fprintf(&b, "## Tasks\n\n_Run `/plan %s` to generate tasks, or add them manually below._\n\n", id)
	b.WriteString("## Open Questions\n\n- _Any unknowns or decisions to be made?_\n")
	return b.String()
}

// resolveChangeDir sanitizes a raw change id and resolves its directory
// under the project root, guarding against path traversal.
func resolveChangeDir(root, rawID string) (string, string, error) {
	id := change.SanitizeID(rawID)
	if id == "" {
		return "", "", cerr.NewError(cerr.InvalidArgument, "invalid change id", nil)
	}
	changesRoot := filepath.Join(root, "openspec", "changes")
	dir := filepath.Join(changesRoot, id)
	if !strings.HasPrefix(dir, changesRoot+string(filepath.Separator)) {
		return "", "", cerr.NewError(cerr.InvalidArgument, "invalid change id", nil)
	}
	if _, err := os.Stat(dir); err != nil {
		return "", "", cerr.NewError(cerr.NotFound, fmt.Sprintf("change %q not found", id), err)
	}
	return id, dir, nil
}
