package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type Category string

const (
	CategoryOpenSpec Category = "openspec"
	CategoryBeads    Category = "beads"
	CategoryGit      Category = "git"
	CategoryConfig   Category = "config"
	CategoryAny      Category = "any"
)

type target struct {
	dir      string
	category Category
}

// Watcher observes the source directories of a project root and invokes
// the callback once per settled burst of raw filesystem events, debounced
// independently per category.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func(Category)

	mu      sync.Mutex
	running bool
	fsw     *fsnotify.Watcher
	timers  map[Category]*time.Timer
	targets []target
	done    chan struct{}
}

func New(root string, debounce time.Duration, onChange func(Category)) *Watcher {
	return &Watcher{
		root:     root,
		debounce: debounce,
		onChange: onChange,
		timers:   map[Category]*time.Timer{},
	}
}

// Start begins watching. Directories that do not exist are skipped
// silently. Calling Start while already running is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w.targets = []target{
		{filepath.Join(w.root, "openspec"), CategoryOpenSpec},
		{filepath.Join(w.root, ".beads"), CategoryBeads},
		{filepath.Join(w.root, ".git", "refs"), CategoryGit},
		{filepath.Join(w.root, ".clawde"), CategoryConfig},
	}
	for _, t := range w.targets {
		addRecursive(ctx, fsw, t.dir)
	}

	w.fsw = fsw
	w.running = true
	w.done = make(chan struct{})
	go w.loop(ctx, fsw)
	return nil
}

// fsnotify watches are not recursive, so every subdirectory is added
// individually, including ones created while running.
func addRecursive(ctx context.Context, fsw *fsnotify.Watcher, dir string) {
	if _, err := os.Stat(dir); err != nil {
		return
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			slog.DebugContext(ctx, "failed to watch directory", "dir", path, "error", err)
		}
		return nil
	})
	if err != nil {
		slog.DebugContext(ctx, "walk failed", "dir", dir, "error", err)
	}
}

// loop receives the watcher directly rather than reading w.fsw, which
// Stop nils concurrently; the closed channels signal shutdown.
func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			cat, found := w.classify(ev.Name)
			if !found {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					addRecursive(ctx, fsw, ev.Name)
				}
			}
			w.schedule(cat)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "watcher error", "error", err)
		}
	}
}

func (w *Watcher) classify(path string) (Category, bool) {
	for _, t := range w.targets {
		if path == t.dir || strings.HasPrefix(path, t.dir+string(filepath.Separator)) {
			return t.category, true
		}
	}
	return "", false
}

func (w *Watcher) schedule(cat Category) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if existing := w.timers[cat]; existing != nil {
		existing.Stop()
	}
	w.timers[cat] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, cat)
		running := w.running
		w.mu.Unlock()
		if !running {
			return
		}
		w.onChange(cat)
		w.onChange(CategoryAny)
	})
}

// Stop releases all watch handles and cancels pending debounce timers.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	for cat, timer := range w.timers {
		timer.Stop()
		delete(w.timers, cat)
	}
	fsw := w.fsw
	w.fsw = nil
	done := w.done
	w.mu.Unlock()

	fsw.Close()
	<-done
}

func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
