package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/pyros-projects/clawde/internal/agent"
	"github.com/pyros-projects/clawde/internal/change"
	"github.com/pyros-projects/clawde/internal/openspec"
	"github.com/pyros-projects/clawde/internal/project"
	"github.com/pyros-projects/clawde/pkg/cerr"
)

type planRequest struct {
	DryRun bool `json:"dryRun"`
}

// PlanChange generates a tasks.md plan from a change's proposal. With
// dryRun the generated plan is returned together with a unified diff
// against the existing plan instead of being written.
func (s *Server) PlanChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req planRequest
	if r.Body != nil {
		// An empty body means a plain non-dry-run plan.
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

	proposal, err := os.ReadFile(filepath.Join(dir, "proposal.md"))
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.NotFound, fmt.Sprintf("no proposal.md found for change %q", id), err)
		return
	}

	existing := ""
	tasksPath := filepath.Join(dir, "tasks.md")
	if raw, err := os.ReadFile(tasksPath); err == nil {
		existing = string(raw)
	}

	generated := s.generateTasks(ctx, state.Project, id, string(proposal), existing)

	if req.DryRun {
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(existing),
			B:        difflib.SplitLines(generated),
			FromFile: "tasks.md (current)",
			ToFile:   "tasks.md (generated)",
			Context:  3,
		})
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.Internal, "failed to diff plans", err)
			return
		}
		cerr.SetJSONResponse(ctx, map[string]any{
			"success":  true,
			"dryRun":   true,
			"changeId": id,
			"preview":  generated,
			"diff":     diff,
			"message":  fmt.Sprintf("Preview of tasks for %q (dry run, not written)", id),
		})
		return
	}

	if err := os.WriteFile(tasksPath, []byte(generated), 0644); err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to write tasks.md", err)
		return
	}

	taskCount := len(openspec.ParseTasks(generated))
	cerr.SetJSONResponse(ctx, map[string]any{
		"success":   true,
		"changeId":  id,
		"tasksPath": tasksPath,
		"taskCount": taskCount,
		"message":   fmt.Sprintf("Generated %d tasks for %q", taskCount, id),
	})
}

// generateTasks asks the default agent to decompose the proposal, and
// falls back to a fill-in template when no agent answers.
func (s *Server) generateTasks(ctx context.Context, proj *project.Context, id, proposal, existing string) string {
	if cfg, ok := defaultAgent(proj); ok {
		messages := []agent.ChatMessage{
			{Role: "system", Content: planSystemPrompt(id)},
			{Role: "user", Content: planUserPrompt(proposal, existing)},
		}
		var out strings.Builder
		err := s.agents.SendMessage(ctx, cfg, messages, proj, func(chunk string) {
			out.WriteString(chunk)
		})
		if err == nil && strings.TrimSpace(out.String()) != "" {
			return strings.TrimSpace(out.String()) + "\n"
		}
		slog.InfoContext(ctx, "agent planning unavailable, using template", "agent", cfg.ID, "error", err)
	}
	return fallbackPlan(id, proposal)
}

func defaultAgent(proj *project.Context) (project.AgentConfig, bool) {
	want := proj.Config.Settings.DefaultAgent
	for _, a := range proj.Config.Agents {
		if a.Connection.Gateway == "" {
			continue
		}
		if want == "" || a.ID == want {
			return a, true
		}
	}
	return project.AgentConfig{}, false
}

func planSystemPrompt(id string) string {
	return fmt.Sprintf(`You are a task decomposition assistant.

Read the feature proposal and output ONLY a tasks.md document, nothing else, in this format:

# %s — Tasks

## Phase 1: [Phase Name]

### T1: [Task Title]
- [Requirement]
- **Deps:** none

### T2: [Task Title]
- [Requirement]
- **Deps:** T1

Guidelines:
- Group related work into phases
- Each task should be completable in 1-4 hours
- Always include a **Deps:** line (comma-separated task refs, or "none")
- Number tasks T1, T2, T3...`, id)
}

func planUserPrompt(proposal, existing string) string {
	if existing != "" {
		return fmt.Sprintf("Here's a feature proposal with existing tasks that may need updates.\n\n## Proposal\n%s\n\n## Existing Tasks\n%s\n\nRegenerate the tasks based on the current proposal state.", proposal, existing)
	}
	return fmt.Sprintf("Here's a feature proposal. Generate a task breakdown.\n\n## Proposal\n%s", proposal)
}

func fallbackPlan(id, proposal string) string {
	title := change.ExtractTitle(proposal)
	if title == "" {
		title = id
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — Tasks\n\n", id)
	b.WriteString("> Auto-generated template. Agent planning unavailable, please refine manually.\n\n")
	b.WriteString("## Phase 1: Foundation\n\n")
	b.WriteString("### T1: Initial setup\n- Set up base structure\n- Define interfaces/types\n- **Deps:** none\n\n")
	b.WriteString("### T2: Core implementation\n- Implement main functionality from proposal\n- **Deps:** T1\n\n")
	b.WriteString("## Phase 2: Integration\n\n")
	b.WriteString("### T3: Wire up\n- Connect to existing components\n- **Deps:** T2\n\n")
	b.WriteString("## Phase 3: Polish\n\n")
	b.WriteString("### T4: Testing and refinement\n- Add tests\n- Handle edge cases\n- **Deps:** T3\n\n")
	fmt.Fprintf(&b, "---\n_Original proposal: %s_\n", title)
	return b.String()
}
