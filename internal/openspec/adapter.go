package openspec

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pyros-projects/clawde/internal/change"
)

var artifactTypes = []change.ArtifactType{
	change.ArtifactProposal,
	change.ArtifactSpecs,
	change.ArtifactDesign,
	change.ArtifactTasks,
}

// Adapter reads openspec/changes/* directories into Change entities. The
// cache is replaced wholesale on every refresh.
type Adapter struct {
	root string

	mu      sync.RWMutex
	changes []*change.Change
}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Init(ctx context.Context, root string) error {
	a.root = root
	return a.Refresh(ctx)
}

// Refresh re-reads the changes directory. A missing directory or an
// unreadable entry empties or skips, it never fails the refresh.
func (a *Adapter) Refresh(ctx context.Context) error {
	changesDir := filepath.Join(a.root, "openspec", "changes")
	entries, err := os.ReadDir(changesDir)
	if err != nil {
		a.setChanges(nil)
		return nil
	}

	var changes []*change.Change
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		changes = append(changes, a.readChange(ctx, changesDir, entry.Name()))
	}
	a.setChanges(changes)
	return nil
}

func (a *Adapter) readChange(ctx context.Context, changesDir, dirName string) *change.Change {
	changeDir := filepath.Join(changesDir, dirName)
	var artifacts []*change.Artifact
	var latest time.Time

	for _, typ := range artifactTypes {
		candidates := []string{
			string(typ) + ".md",
			filepath.Join(string(typ), "index.md"),
			filepath.Join(string(typ), "README.md"),
		}
		for _, candidate := range candidates {
			path := filepath.Join(changeDir, candidate)
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				slog.WarnContext(ctx, "failed to read artifact", "path", path, "error", err)
				continue
			}
			title := change.ExtractTitle(string(raw))
			if title == "" {
				title = fmt.Sprintf("%s (%s)", typ, dirName)
			}
			if info.ModTime().After(latest) {
				latest = info.ModTime()
			}
			artifacts = append(artifacts, &change.Artifact{
				Type:        typ,
				Path:        path,
				Title:       title,
				Content:     string(raw),
				LastUpdated: info.ModTime(),
			})
			break
		}
	}

	change.MarkStale(artifacts)

	c := &change.Change{
		ID:        dirName,
		Name:      displayName(dirName),
		Status:    change.InferStatus(artifacts),
		Artifacts: artifacts,
		TaskIDs:   []string{},
		CreatedAt: latest,
		UpdatedAt: latest,
	}
	for _, art := range artifacts {
		switch art.Type {
		case change.ArtifactProposal:
			c.Name = art.Title
			c.Description = change.ExtractDescription(art.Content)
		case change.ArtifactTasks:
			c.TaskIDs = ExtractTaskIDs(art.Content)
		}
	}
	if c.Description == "" {
		c.Description = "Change: " + dirName
	}
	return c
}

func (a *Adapter) setChanges(changes []*change.Change) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.changes = changes
}

// Changes returns the current cache.
func (a *Adapter) Changes() []*change.Change {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.changes
}

// Change returns one change by id, or nil.
func (a *Adapter) Change(id string) *change.Change {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.changes {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Artifact returns one artifact of a change, or nil.
func (a *Adapter) Artifact(changeID string, typ change.ArtifactType) *change.Artifact {
	if c := a.Change(changeID); c != nil {
		return c.Artifact(typ)
	}
	return nil
}

// Artifacts returns every artifact of a change, or nil.
func (a *Adapter) Artifacts(changeID string) []*change.Artifact {
	if c := a.Change(changeID); c != nil {
		return c.Artifacts
	}
	return nil
}

var taskIDPattern = regexp.MustCompile(`(?m)^###\s+(T\d+)`)

// ExtractTaskIDs pulls the T<n> task references out of a tasks document.
func ExtractTaskIDs(content string) []string {
	ids := []string{}
	for _, m := range taskIDPattern.FindAllStringSubmatch(content, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

func displayName(dirName string) string {
	words := strings.Split(dirName, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
