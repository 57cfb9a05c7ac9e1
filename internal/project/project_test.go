package project

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverEmptyRoot(t *testing.T) {
	root := t.TempDir()
	ctx := Discover(root)
	if ctx.HasGit || ctx.HasOpenSpec || ctx.HasBeads || ctx.HasConfig {
		t.Errorf("empty root should have no capabilities: %+v", ctx)
	}
	if ctx.Name != filepath.Base(root) {
		t.Errorf("expected name %q, got %q", filepath.Base(root), ctx.Name)
	}
	if len(ctx.Config.Agents) != 0 {
		t.Errorf("expected empty agents, got %d", len(ctx.Config.Agents))
	}
	if got := ctx.Config.Settings; !got.ConfirmDestructive || got.MaxActionsPerMinute != 30 || got.WatchDebounceMs != 100 {
		t.Errorf("expected default settings, got %+v", got)
	}
}

func TestDiscoverCapabilities(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{".git", "openspec", ".beads"} {
		if err := os.Mkdir(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
	ctx := Discover(root)
	if !ctx.HasGit || !ctx.HasOpenSpec || !ctx.HasBeads {
		t.Errorf("expected all three source capabilities: %+v", ctx)
	}
	if ctx.HasConfig {
		t.Error("no .clawde directory, HasConfig should be false")
	}
}

func TestDiscoverNameFromPackageJSON(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "package.json"), []byte(`{"name":"my-dashboard"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if got := Discover(root).Name; got != "my-dashboard" {
		t.Errorf("expected name my-dashboard, got %q", got)
	}

	// Malformed package.json falls back to the directory name.
	if err := os.WriteFile(filepath.Join(root, "package.json"), []byte(`{broken`), 0644); err != nil {
		t.Fatal(err)
	}
	if got := Discover(root).Name; got != filepath.Base(root) {
		t.Errorf("expected fallback name, got %q", got)
	}
}

func TestDiscoverReadsConfig(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".clawde"), 0755); err != nil {
		t.Fatal(err)
	}
	cfg := `{
		"agents": [{"id": "claude", "provider": "Anthropic", "model": "opus", "capabilities": ["coding"], "connection": {"type": "http", "gateway": "http://localhost:18789"}}],
		"settings": {"confirmDestructive": false, "watchDebounceMs": 250}
	}`
	if err := os.WriteFile(filepath.Join(root, ".clawde", "config.json"), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	ctx := Discover(root)
	if !ctx.HasConfig {
		t.Fatal("expected HasConfig")
	}
	if len(ctx.Config.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(ctx.Config.Agents))
	}
	a := ctx.Config.Agents[0]
	if a.ID != "claude" || a.Name != "claude" || a.Connection.Gateway != "http://localhost:18789" {
		t.Errorf("unexpected agent: %+v", a)
	}
	s := ctx.Config.Settings
	if s.ConfirmDestructive || s.WatchDebounceMs != 250 || s.MaxActionsPerMinute != 30 {
		t.Errorf("settings merge wrong: %+v", s)
	}
}

func TestDiscoverBrokenConfig(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".clawde"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".clawde", "config.json"), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := Discover(root)
	if len(ctx.Config.Agents) != 0 || !ctx.Config.Settings.ConfirmDestructive {
		t.Errorf("broken config should fall back to defaults: %+v", ctx.Config)
	}
}

func TestParseConfigAgentDefaults(t *testing.T) {
	cfg := ParseConfig([]byte(`{"agents":[{}]}`))
	if len(cfg.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(cfg.Agents))
	}
	a := cfg.Agents[0]
	if a.ID != "unknown" || a.Name != "unknown" || a.Color != "#64748b" || a.Connection.Type != "openclaw" {
		t.Errorf("unexpected defaults: %+v", a)
	}
}
