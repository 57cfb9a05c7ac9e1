package beads

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pyros-projects/clawde/internal/task"
	"github.com/pyros-projects/clawde/pkg/cerr"
	"github.com/pyros-projects/clawde/pkg/shellquote"
)

// Runner executes one bd invocation in dir and returns its stdout.
// Injectable so tests can stub the CLI.
type Runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

const commandTimeout = 10 * time.Second

func execRunner(ctx context.Context, dir string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "bd", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", shellquote.Join(append([]string{"bd"}, args...)...), err)
	}
	return out, nil
}

type issue struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Assignee    string `json:"assignee"`
	Created     string `json:"created"`
	Updated     string `json:"updated"`
}

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Adapter reads the task graph from the bd CLI. The cache is replaced
// wholesale on every refresh; dependency edges are re-resolved against
// the freshly read task set, never carried forward.
type Adapter struct {
	root string
	run  Runner

	mu    sync.RWMutex
	tasks []*task.Task
	edges []Edge
}

func NewAdapter() *Adapter {
	return &Adapter{run: execRunner}
}

// NewAdapterWithRunner is for tests.
func NewAdapterWithRunner(run Runner) *Adapter {
	return &Adapter{run: run}
}

func (a *Adapter) Init(ctx context.Context, root string) error {
	a.root = root
	return a.Refresh(ctx)
}

// Refresh re-reads the full task list and its dependency edges. An
// unavailable or unparseable CLI empties the cache instead of failing.
func (a *Adapter) Refresh(ctx context.Context) error {
	out, err := a.run(ctx, a.root, "list", "--json", "--all")
	if err != nil {
		slog.DebugContext(ctx, "bd list failed, clearing task cache", "error", err)
		a.setCache(nil, nil)
		return nil
	}
	var issues []issue
	if err := json.Unmarshal(out, &issues); err != nil {
		slog.WarnContext(ctx, "bd list returned unparseable output", "error", err)
		a.setCache(nil, nil)
		return nil
	}

	var edges []Edge
	for _, iss := range issues {
		depOut, err := a.run(ctx, a.root, "dep", "list", iss.ID, "--json")
		if err != nil {
			// Some issues have no deps; a per-task failure never aborts
			// the whole refresh.
			continue
		}
		var deps []Edge
		if err := json.Unmarshal(depOut, &deps); err != nil {
			continue
		}
		for _, d := range deps {
			if d.From != "" && d.To != "" {
				edges = append(edges, d)
			}
		}
	}

	tasks := make([]*task.Task, 0, len(issues))
	for _, iss := range issues {
		t := mapIssue(iss)
		for _, e := range edges {
			if e.From == t.ID {
				t.Deps = append(t.Deps, e.To)
			}
		}
		tasks = append(tasks, t)
	}
	a.setCache(tasks, edges)
	return nil
}

func mapIssue(iss issue) *task.Task {
	now := time.Now()
	t := &task.Task{
		ID:          iss.ID,
		Title:       iss.Title,
		Description: iss.Description,
		Status:      task.ParseStatus(iss.Status),
		Deps:        []string{},
		Priority:    task.ParsePriority(iss.Priority),
		Assignee:    iss.Assignee,
		Evidence:    []task.Evidence{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ts, err := time.Parse(time.RFC3339, iss.Created); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, iss.Updated); err == nil {
		t.UpdatedAt = ts
	}
	return t
}

func (a *Adapter) setCache(tasks []*task.Task, edges []Edge) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks = tasks
	a.edges = edges
}

// Tasks returns the current cache.
func (a *Adapter) Tasks() []*task.Task {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tasks
}

// Task returns one task by id, or nil.
func (a *Adapter) Task(id string) *task.Task {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, t := range a.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ReadyTasks returns the tasks whose dependencies are all done.
func (a *Adapter) ReadyTasks() []*task.Task {
	return task.Ready(a.Tasks())
}

// DependencyGraph returns the cached tasks and edges.
func (a *Adapter) DependencyGraph() ([]*task.Task, []Edge) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tasks, a.edges
}

// UpdateFields are the task fields bd update accepts.
type UpdateFields struct {
	Assignee *string
	Status   *task.Status
	Priority *string
	Title    *string
}

// Update patches a task via bd update and re-reads the cache. At least
// one field must be set.
func (a *Adapter) Update(ctx context.Context, id string, fields UpdateFields) (*task.Task, error) {
	args := []string{"update", id, "--json"}
	if fields.Assignee != nil {
		args = append(args, "--assignee", *fields.Assignee)
	}
	if fields.Status != nil {
		args = append(args, "--status", task.ToTrackerStatus(*fields.Status))
	}
	if fields.Priority != nil {
		args = append(args, "--priority", *fields.Priority)
	}
	if fields.Title != nil {
		args = append(args, "--title", *fields.Title)
	}
	if len(args) == 3 {
		return nil, cerr.NewError(cerr.InvalidArgument, "no fields to update", nil)
	}

	if _, err := a.run(ctx, a.root, args...); err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "no such issue") {
			return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("task %q not found", id), err)
		}
		return nil, cerr.NewError(cerr.Unavailable, fmt.Sprintf("failed to update task %q", id), err)
	}

	if err := a.Refresh(ctx); err != nil {
		return nil, err
	}
	updated := a.Task(id)
	if updated == nil {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("task %q not found after update", id), nil)
	}
	return updated, nil
}

// Close marks a task done via bd close and re-reads the cache.
func (a *Adapter) Close(ctx context.Context, id string) (*task.Task, error) {
	if _, err := a.run(ctx, a.root, "close", id); err != nil {
		return nil, cerr.NewError(cerr.Unavailable, fmt.Sprintf("failed to close task %q", id), err)
	}
	if err := a.Refresh(ctx); err != nil {
		return nil, err
	}
	return a.Task(id), nil
}

// Create adds a new task and returns its tracker-assigned id. The core
// never invents task ids, they always come from the tracker.
func (a *Adapter) Create(ctx context.Context, title string) (string, error) {
	out, err := a.run(ctx, a.root, "add", "--title", title, "--json")
	if err != nil {
		return "", cerr.NewError(cerr.Unavailable, "failed to create task", err)
	}
	var result struct {
		ID    string `json:"id"`
		Issue struct {
			ID string `json:"id"`
		} `json:"issue"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return "", cerr.NewError(cerr.Internal, "unparseable bd add output", err)
	}
	id := result.ID
	if id == "" {
		id = result.Issue.ID
	}
	if id == "" {
		return "", cerr.NewError(cerr.Internal, "bd add returned no task id", nil)
	}
	return id, nil
}

// AddDependency records an edge from one task to the task it depends on.
func (a *Adapter) AddDependency(ctx context.Context, from, to string) error {
	if _, err := a.run(ctx, a.root, "dep", from, to); err != nil {
		return cerr.NewError(cerr.Unavailable, fmt.Sprintf("failed to add dependency %s -> %s", from, to), err)
	}
	return nil
}
