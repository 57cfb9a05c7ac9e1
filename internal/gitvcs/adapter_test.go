package gitvcs

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func logRunner(out string, err error) Runner {
	return func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if err != nil {
			return nil, err
		}
		return []byte(out), nil
	}
}

const sampleLog = "aaaa1111bbbb2222cccc3333dddd4444eeee5555\taaaa111\tfix watcher debounce\tAlice\talice@example.com\t2025-06-01T12:00:00+09:00\n" +
	"ffff6666aaaa7777bbbb8888cccc9999dddd0000\tffff666\tadd dark mode proposal\tbob\tbob@example.com\t2025-06-01T11:00:00+09:00\n" +
	"malformed line without tabs\n"

func TestCommits(t *testing.T) {
	a := NewAdapterWithRunner(logRunner(sampleLog, nil))
	if err := a.Init(context.Background(), "/proj"); err != nil {
		t.Fatal(err)
	}
	commits := a.Commits(context.Background())
	if len(commits) != 2 {
		t.Fatalf("malformed lines are skipped, expected 2 commits, got %d", len(commits))
	}
	c := commits[0]
	if c.ShortHash != "aaaa111" || c.Subject != "fix watcher debounce" || c.Author != "Alice" {
		t.Errorf("unexpected commit: %+v", c)
	}
	if c.Timestamp.IsZero() {
		t.Error("timestamp not parsed")
	}
}

func TestCommitsNoRepository(t *testing.T) {
	a := NewAdapterWithRunner(logRunner("", errors.New("not a git repository")))
	if got := a.Commits(context.Background()); len(got) != 0 {
		t.Errorf("expected no commits, got %d", len(got))
	}
}

func TestCommitEventsAuthorCorrelation(t *testing.T) {
	a := NewAdapterWithRunner(logRunner(sampleLog, nil))
	events := a.CommitEvents(context.Background(), map[string]string{
		"Alice": "agent-alice",
		"Bob":   "agent-bob",
	})
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "git-aaaa111" {
		t.Errorf("event id should be keyed by short hash, got %s", events[0].ID)
	}
	if events[0].AgentID != "agent-alice" {
		t.Errorf("exact author match failed: %q", events[0].AgentID)
	}
	// "bob" in history vs "Bob" in config: case-folded match.
	if events[1].AgentID != "agent-bob" {
		t.Errorf("case-folded author match failed: %q", events[1].AgentID)
	}
}

func TestCommitEventsUnmatchedAuthor(t *testing.T) {
	a := NewAdapterWithRunner(logRunner(sampleLog, nil))
	events := a.CommitEvents(context.Background(), nil)
	for _, ev := range events {
		if ev.AgentID != "" {
			t.Errorf("unmatched authors must not correlate: %+v", ev)
		}
	}
}

const sampleDiff = `diff --git a/watcher.go b/watcher.go
index 1111111..2222222 100644
--- a/watcher.go
+++ b/watcher.go
@@ -1,4 +1,5 @@
 package watcher
+import "time"

-var debounce = 50
+var debounce = 100
@@ -10,2 +11,2 @@
 func Start() {
 }
`

func TestParseDiff(t *testing.T) {
	files := ParseDiff(sampleDiff)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	f := files[0]
	if f.Path != "watcher.go" {
		t.Errorf("unexpected path: %q", f.Path)
	}
	if f.Additions != 2 || f.Deletions != 1 {
		t.Errorf("additions=%d deletions=%d, want 2/1", f.Additions, f.Deletions)
	}
	if len(f.Hunks) != 2 {
		t.Fatalf("expected 2 hunks, got %d", len(f.Hunks))
	}
	if !strings.HasPrefix(f.Hunks[0].Header, "@@ -1,4") {
		t.Errorf("unexpected hunk header: %q", f.Hunks[0].Header)
	}
	if f.Hunks[0].Lines[1].Type != DiffAdd || f.Hunks[0].Lines[1].Content != `import "time"` {
		t.Errorf("unexpected hunk line: %+v", f.Hunks[0].Lines[1])
	}
}

func TestParseDiffEmpty(t *testing.T) {
	if got := ParseDiff(""); len(got) != 0 {
		t.Errorf("expected no files, got %d", len(got))
	}
}
