package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/pyros-projects/clawde/internal/agent"
	"github.com/pyros-projects/clawde/internal/beads"
	"github.com/pyros-projects/clawde/internal/change"
	"github.com/pyros-projects/clawde/internal/event"
	"github.com/pyros-projects/clawde/internal/eventbus"
	"github.com/pyros-projects/clawde/internal/gitvcs"
	"github.com/pyros-projects/clawde/internal/openspec"
	"github.com/pyros-projects/clawde/internal/project"
	"github.com/pyros-projects/clawde/internal/task"
	"github.com/pyros-projects/clawde/internal/watcher"
	"github.com/pyros-projects/clawde/pkg/panicerr"
)

// ProjectState is one immutable snapshot of the joined project view. A
// refresh builds a wholly new snapshot, the published one is never
// patched in place.
type ProjectState struct {
	Project *project.Context `json:"project"`
	Tasks   []*task.Task     `json:"tasks"`
	Changes []*change.Change `json:"changes"`
	Events  []*event.Event   `json:"events"`
	Agents  []*agent.Agent   `json:"agents"`
	BuiltAt time.Time        `json:"builtAt"`
}

type RefreshListener func(*ProjectState)

type listenerEntry struct {
	id int
	fn RefreshListener
}

// Coordinator owns the adapters, project discovery, the published
// snapshot, and the watcher lifecycle. One instance serves the whole
// process.
type Coordinator struct {
	root string

	spec *openspec.Adapter
	bead *beads.Adapter
	vcs  *gitvcs.Adapter
	bus  *eventbus.Bus

	// Refreshes are serialized: overlapping triggers queue up instead of
	// interleaving, so the published snapshot always reflects a complete
	// pass.
	refreshMu sync.Mutex

	mu         sync.RWMutex
	state      *ProjectState
	listeners  []listenerEntry
	nextListID int
	watch      *watcher.Watcher
}

var (
	singletonMu sync.Mutex
	singleton   *Coordinator
)

// Get returns the process-wide coordinator, creating it on first use.
func Get(root string, bus *eventbus.Bus) *Coordinator {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton == nil {
		singleton = New(root, bus)
	}
	return singleton
}

// Reset discards the process-wide coordinator. For tests.
func Reset() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton != nil {
		singleton.StopWatching()
	}
	singleton = nil
}

func New(root string, bus *eventbus.Bus) *Coordinator {
	return &Coordinator{
		root: root,
		spec: openspec.NewAdapter(),
		bead: beads.NewAdapter(),
		vcs:  gitvcs.NewAdapter(),
		bus:  bus,
	}
}

// NewForTest builds a coordinator with explicit adapters.
func NewForTest(root string, spec *openspec.Adapter, bead *beads.Adapter, vcs *gitvcs.Adapter, bus *eventbus.Bus) *Coordinator {
	return &Coordinator{root: root, spec: spec, bead: bead, vcs: vcs, bus: bus}
}

// Beads exposes the task adapter for mutation endpoints.
func (c *Coordinator) Beads() *beads.Adapter { return c.bead }

// Git exposes the version-control adapter for diff reads.
func (c *Coordinator) Git() *gitvcs.Adapter { return c.vcs }

// Root returns the project root the coordinator was built for.
func (c *Coordinator) Root() string { return c.root }

// Init runs discovery, initializes the adapters whose source is present,
// and publishes the first snapshot.
func (c *Coordinator) Init(ctx context.Context) (*ProjectState, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	proj := project.Discover(c.root)
	if proj.HasOpenSpec {
		if err := c.spec.Init(ctx, c.root); err != nil {
			return nil, err
		}
	}
	if proj.HasBeads {
		if err := c.bead.Init(ctx, c.root); err != nil {
			return nil, err
		}
	}
	if proj.HasGit {
		if err := c.vcs.Init(ctx, c.root); err != nil {
			return nil, err
		}
	}

	state := c.buildState(ctx, proj)
	c.publish(state)
	return state, nil
}

// StartWatching begins filesystem observation with the configured
// debounce. A no-op when a watcher is already running.
func (c *Coordinator) StartWatching(ctx context.Context) error {
	c.mu.Lock()
	if c.watch != nil && c.watch.IsRunning() {
		c.mu.Unlock()
		return nil
	}
	proj := project.Discover(c.root)
	debounce := time.Duration(proj.Config.Settings.WatchDebounceMs) * time.Millisecond
	w := watcher.New(c.root, debounce, func(cat watcher.Category) {
		if cat == watcher.CategoryAny {
			// Category callbacks already trigger a refresh; the catch-all
			// would double it.
			return
		}
		if err := c.Refresh(context.Background(), cat); err != nil {
			slog.Warn("refresh failed, keeping previous snapshot", "category", cat, "error", err)
		}
	})
	c.watch = w
	c.mu.Unlock()
	return w.Start(ctx)
}

// StopWatching stops the watcher if one is running.
func (c *Coordinator) StopWatching() {
	c.mu.Lock()
	w := c.watch
	c.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// State returns the last published snapshot, or nil before the first
// Init.
func (c *Coordinator) State() *ProjectState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnRefresh registers a listener called with each new snapshot, in
// registration order. The returned function unsubscribes.
func (c *Coordinator) OnRefresh(fn RefreshListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListID
	c.nextListID++
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, e := range c.listeners {
			if e.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of registered refresh listeners.
func (c *Coordinator) ListenerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners)
}

// Refresh re-reads the adapters mapped to category, re-runs discovery,
// rebuilds the snapshot, and notifies listeners. A failed refresh leaves
// the previously published snapshot current.
func (c *Coordinator) Refresh(ctx context.Context, category watcher.Category) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if category == watcher.CategoryOpenSpec || category == watcher.CategoryAny {
		if err := c.spec.Refresh(ctx); err != nil {
			return err
		}
	}
	if category == watcher.CategoryBeads || category == watcher.CategoryAny {
		if err := c.bead.Refresh(ctx); err != nil {
			return err
		}
	}
	// Version control reads on demand, no explicit refresh step.

	proj := project.Discover(c.root)
	prev := c.State()
	state := c.buildState(ctx, proj)
	c.publish(state)

	c.mu.RLock()
	listeners := make([]listenerEntry, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, e := range listeners {
		fn := e.fn
		if err := panicerr.Safe(func() error {
			fn(state)
			return nil
		})(); err != nil {
			slog.WarnContext(ctx, "refresh listener panicked", "error", err)
		}
	}

	if c.bus != nil {
		for _, ev := range diffEvents(prev, state) {
			c.bus.Publish(ev)
		}
		c.bus.PublishNew(event.TypeRefresh, map[string]string{"category": string(category)})
	}
	return nil
}

// diffEvents compares two snapshots and reports what changed as bus
// events. The first snapshot has no predecessor and produces none.
func diffEvents(prev, next *ProjectState) []*event.Event {
	if prev == nil {
		return nil
	}
	var out []*event.Event

	prevTasks := make(map[string]*task.Task, len(prev.Tasks))
	for _, t := range prev.Tasks {
		prevTasks[t.ID] = t
	}
	for _, t := range next.Tasks {
		old, ok := prevTasks[t.ID]
		switch {
		case !ok:
			ev := event.New(event.TypeTaskCreated, map[string]string{"title": t.Title})
			ev.TaskID = t.ID
			out = append(out, ev)
		case old.Status != t.Status && t.Status == task.StatusDone:
			ev := event.New(event.TypeTaskCompleted, map[string]string{"title": t.Title})
			ev.TaskID = t.ID
			out = append(out, ev)
		case old.Status != t.Status:
			ev := event.New(event.TypeTaskUpdated, map[string]string{
				"title":  t.Title,
				"status": string(t.Status),
			})
			ev.TaskID = t.ID
			out = append(out, ev)
		}
	}

	prevChanges := make(map[string]bool, len(prev.Changes))
	for _, ch := range prev.Changes {
		prevChanges[ch.ID] = true
	}
	for _, ch := range next.Changes {
		if !prevChanges[ch.ID] {
			ev := event.New(event.TypeChangeCreated, map[string]string{"name": ch.Name})
			ev.ChangeID = ch.ID
			out = append(out, ev)
		}
	}
	return out
}

func (c *Coordinator) publish(state *ProjectState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// buildState joins the adapter caches into one snapshot. Sources not
// present contribute empty lists. The three reads run concurrently, the
// commit read is the only one that touches the repository.
func (c *Coordinator) buildState(ctx context.Context, proj *project.Context) *ProjectState {
	var (
		tasks   []*task.Task
		changes []*change.Change
		events  []*event.Event
	)
	var wg conc.WaitGroup
	if proj.HasBeads {
		wg.Go(func() { tasks = c.bead.Tasks() })
	}
	if proj.HasOpenSpec {
		wg.Go(func() { changes = c.spec.Changes() })
	}
	if proj.HasGit {
		wg.Go(func() { events = c.vcs.CommitEvents(ctx, authorMap(proj)) })
	}
	wg.Wait()

	if tasks == nil {
		tasks = []*task.Task{}
	}
	if changes == nil {
		changes = []*change.Change{}
	}
	if events == nil {
		events = []*event.Event{}
	}
	return &ProjectState{
		Project: proj,
		Tasks:   tasks,
		Changes: changes,
		Events:  events,
		Agents:  agent.FromConfig(proj.Config.Agents),
		BuiltAt: time.Now(),
	}
}

func authorMap(proj *project.Context) map[string]string {
	m := make(map[string]string, len(proj.Config.Agents))
	for _, a := range proj.Config.Agents {
		m[a.Name] = a.ID
	}
	return m
}
