package gitvcs

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/pyros-projects/clawde/internal/event"
	"github.com/pyros-projects/clawde/pkg/shellquote"
)

// Runner executes one git invocation in dir and returns its stdout.
type Runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

const commandTimeout = 10 * time.Second

func execRunner(ctx context.Context, dir string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", shellquote.Join(append([]string{"git"}, args...)...), err)
	}
	return out, nil
}

const (
	logFormat  = "%H%x09%h%x09%s%x09%an%x09%ae%x09%aI"
	maxCommits = 50
)

type Commit struct {
	Hash      string    `json:"hash"`
	ShortHash string    `json:"shortHash"`
	Subject   string    `json:"subject"`
	Author    string    `json:"author"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

// Adapter reads commit history and diffs from a local repository. It
// keeps no cache: history is bounded and cheap to re-read on demand.
type Adapter struct {
	root string
	run  Runner
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
	return nil
}

// Commits reads the last 50 commits in a single git invocation. A
// missing repository yields an empty list.
func (a *Adapter) Commits(ctx context.Context) []Commit {
	out, err := a.run(ctx, a.root, "log", "--format="+logFormat, "-n", fmt.Sprint(maxCommits))
	if err != nil {
		slog.DebugContext(ctx, "git log failed", "error", err)
		return nil
	}
	var commits []Commit
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 6 {
			slog.WarnContext(ctx, "malformed git log line", "line", line)
			continue
		}
		c := Commit{
			Hash:      fields[0],
			ShortHash: fields[1],
			Subject:   fields[2],
			Author:    fields[3],
			Email:     fields[4],
		}
		if ts, err := time.Parse(time.RFC3339, fields[5]); err == nil {
			c.Timestamp = ts
		}
		commits = append(commits, c)
	}
	return commits
}

// CommitEvents maps commit history to events, correlating authors to
// agent ids by exact and then case-folded display name. Unmatched
// authors yield events with no agent correlation.
func (a *Adapter) CommitEvents(ctx context.Context, authorToAgent map[string]string) []*event.Event {
	folded := make(map[string]string, len(authorToAgent))
	for name, id := range authorToAgent {
		folded[strings.ToLower(name)] = id
	}

	commits := a.Commits(ctx)
	events := make([]*event.Event, 0, len(commits))
	for _, c := range commits {
		agentID := authorToAgent[c.Author]
		if agentID == "" {
			agentID = folded[strings.ToLower(c.Author)]
		}
		events = append(events, event.NewCommit(c.Hash, c.Subject, c.Author, c.Timestamp, agentID))
	}
	return events
}

// Diff returns the parsed unified diff for a ref range, defaulting to
// the last commit.
func (a *Adapter) Diff(ctx context.Context, ref string) []DiffFile {
	if ref == "" {
		ref = "HEAD~1..HEAD"
	}
	out, err := a.run(ctx, a.root, "diff", ref, "--unified=3")
	if err != nil {
		slog.DebugContext(ctx, "git diff failed", "ref", ref, "error", err)
		return nil
	}
	return ParseDiff(string(out))
}
