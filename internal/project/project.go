package project

import (
	"encoding/json"
	"os"
	"path/filepath"
)

type ConnectionConfig struct {
	Type    string `json:"type"`
	Gateway string `json:"gateway"`
}

type AgentConfig struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Provider     string           `json:"provider"`
	Model        string           `json:"model"`
	Color        string           `json:"color"`
	Capabilities []string         `json:"capabilities"`
	Connection   ConnectionConfig `json:"connection"`
}

type Settings struct {
	ConfirmDestructive  bool   `json:"confirmDestructive"`
	MaxActionsPerMinute int    `json:"maxActionsPerMinute"`
	WatchDebounceMs     int    `json:"watchDebounceMs"`
	DefaultAgent        string `json:"defaultAgent,omitempty"`
	MockMode            bool   `json:"mockMode,omitempty"`
}

type Config struct {
	Agents   []AgentConfig `json:"agents"`
	Settings Settings      `json:"settings"`
}

// Context is the identity and capability view of one project root. It is
// rebuilt wholesale on every discovery pass and never mutated in place.
type Context struct {
	Root        string `json:"root"`
	Name        string `json:"name"`
	HasOpenSpec bool   `json:"hasOpenSpec"`
	HasBeads    bool   `json:"hasBeads"`
	HasGit      bool   `json:"hasGit"`
	HasConfig   bool   `json:"hasConfig"`
	Config      Config `json:"config"`
}

func DefaultSettings() Settings {
	return Settings{
		ConfirmDestructive:  true,
		MaxActionsPerMinute: 30,
		WatchDebounceMs:     100,
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Discover inspects root and returns a complete Context. Each capability
// check is independent, and a broken or unreadable config degrades to an
// empty agent list with default settings instead of failing discovery.
func Discover(root string) *Context {
	ctx := &Context{
		Root:        root,
		Name:        filepath.Base(root),
		HasGit:      exists(filepath.Join(root, ".git")),
		HasOpenSpec: exists(filepath.Join(root, "openspec")),
		HasBeads:    exists(filepath.Join(root, ".beads")),
		HasConfig:   exists(filepath.Join(root, ".clawde")),
		Config: Config{
			Agents:   []AgentConfig{},
			Settings: DefaultSettings(),
		},
	}

	if ctx.HasConfig {
		if raw, err := os.ReadFile(filepath.Join(root, ".clawde", "config.json")); err == nil {
			ctx.Config = ParseConfig(raw)
		}
	}

	if raw, err := os.ReadFile(filepath.Join(root, "package.json")); err == nil {
		var pkg struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(raw, &pkg) == nil && pkg.Name != "" {
			ctx.Name = pkg.Name
		}
	}

	return ctx
}

// ParseConfig decodes a .clawde/config.json document. Malformed input
// yields the default config, never an error.
func ParseConfig(raw []byte) Config {
	var parsed struct {
		Agents   []map[string]json.RawMessage `json:"agents"`
		Settings map[string]json.RawMessage   `json:"settings"`
	}
	cfg := Config{Agents: []AgentConfig{}, Settings: DefaultSettings()}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return cfg
	}
	for _, a := range parsed.Agents {
		cfg.Agents = append(cfg.Agents, parseAgent(a))
	}
	mergeSettings(&cfg.Settings, parsed.Settings)
	return cfg
}

func parseAgent(raw map[string]json.RawMessage) AgentConfig {
	agent := AgentConfig{
		ID:           jsonString(raw["id"], "unknown"),
		Provider:     jsonString(raw["provider"], "unknown"),
		Model:        jsonString(raw["model"], "unknown"),
		Color:        jsonString(raw["color"], "#64748b"),
		Capabilities: []string{},
		Connection:   ConnectionConfig{Type: "openclaw"},
	}
	agent.Name = jsonString(raw["name"], agent.ID)
	if caps, ok := raw["capabilities"]; ok {
		var list []string
		if json.Unmarshal(caps, &list) == nil {
			agent.Capabilities = list
		}
	}
	if conn, ok := raw["connection"]; ok {
		var c ConnectionConfig
		if json.Unmarshal(conn, &c) == nil {
			if c.Type == "" {
				c.Type = "openclaw"
			}
			agent.Connection = c
		}
	}
	return agent
}

func mergeSettings(s *Settings, raw map[string]json.RawMessage) {
	if raw == nil {
		return
	}
	set := func(key string, dst any) {
		if v, ok := raw[key]; ok {
			_ = json.Unmarshal(v, dst)
		}
	}
	set("confirmDestructive", &s.ConfirmDestructive)
	set("maxActionsPerMinute", &s.MaxActionsPerMinute)
	set("watchDebounceMs", &s.WatchDebounceMs)
	set("defaultAgent", &s.DefaultAgent)
	set("mockMode", &s.MockMode)
}

func jsonString(raw json.RawMessage, fallback string) string {
	var s string
	if raw == nil || json.Unmarshal(raw, &s) != nil || s == "" {
		return fallback
	}
	return s
}
