package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pyros-projects/clawde/internal/event"
	"github.com/pyros-projects/clawde/internal/eventbus"
	"github.com/pyros-projects/clawde/internal/project"
	"github.com/pyros-projects/clawde/pkg/cerr"
	"github.com/pyros-projects/clawde/pkg/clog"
)

// Connection is the tracked gateway state for one agent.
type Connection struct {
	AgentID  string           `json:"agentId"`
	Status   ConnectionStatus `json:"status"`
	Error    string           `json:"error,omitempty"`
	LastPing time.Time        `json:"lastPing,omitzero"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Service talks to agent gateways over the OpenAI-compatible chat
// completions API and tracks per-agent connection state.
type Service struct {
	client *http.Client
	bus    *eventbus.Bus

	mu          sync.Mutex
	connections map[string]*Connection
	cancels     map[string]context.CancelFunc
}

func NewService() *Service {
	return &Service{
		client:      &http.Client{},
		connections: map[string]*Connection{},
		cancels:     map[string]context.CancelFunc{},
	}
}

// NewServiceWithBus publishes connection transitions as agent events.
func NewServiceWithBus(bus *eventbus.Bus) *Service {
	s := NewService()
	s.bus = bus
	return s
}

// Ping checks whether an agent's gateway endpoint is reachable. Any
// response other than 404 counts as reachable, a 405 still means the
// endpoint exists.
func (s *Service) Ping(ctx context.Context, cfg project.AgentConfig) bool {
	if cfg.Connection.Gateway == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, cfg.Connection.Gateway+"/v1/chat/completions", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	s.setStatus(cfg.ID, ConnConnected, "")
	s.touchPing(cfg.ID)
	return resp.StatusCode != http.StatusNotFound
}

func (s *Service) setStatus(agentID string, status ConnectionStatus, errMsg string) {
	s.mu.Lock()
	conn := s.connections[agentID]
	if conn == nil {
		conn = &Connection{AgentID: agentID}
		s.connections[agentID] = conn
	}
	prev := conn.Status
	conn.Status = status
	conn.Error = errMsg
	s.mu.Unlock()

	if s.bus == nil || prev == status {
		return
	}
	switch status {
	case ConnConnected:
		ev := event.New(event.TypeAgentConnected, map[string]string{"name": agentID})
		ev.AgentID = agentID
		s.bus.Publish(ev)
	case ConnDisconnected:
		// Only a drop from an established connection is worth an event.
		if prev == ConnConnected {
			ev := event.New(event.TypeAgentDisconnected, map[string]string{"name": agentID})
			ev.AgentID = agentID
			s.bus.Publish(ev)
		}
	}
}

func (s *Service) touchPing(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn := s.connections[agentID]; conn != nil {
		conn.LastPing = time.Now()
	}
}

// ConnectionFor returns the tracked connection for an agent, or nil.
func (s *Service) ConnectionFor(agentID string) *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn := s.connections[agentID]; conn != nil {
		c := *conn
		return &c
	}
	return nil
}

// Connections returns all tracked connections.
func (s *Service) Connections() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		c := *conn
		out = append(out, &c)
	}
	return out
}

// Cancel aborts any in-flight request for the agent. Aborting transitions
// the connection to disconnected, not error.
func (s *Service) Cancel(agentID string) {
	s.mu.Lock()
	cancel := s.cancels[agentID]
	delete(s.cancels, agentID)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.setStatus(agentID, ConnDisconnected, "")
}

// SendMessage streams a chat completion from the agent's gateway,
// invoking onChunk for each content delta. A new message for the same
// agent supersedes and aborts the previous in-flight one.
func (s *Service) SendMessage(ctx context.Context, cfg project.AgentConfig, messages []ChatMessage, projCtx *project.Context, onChunk func(string)) error {
	if cfg.Connection.Gateway == "" {
		return cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("agent %s has no gateway configured", cfg.Name), nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if prev := s.cancels[cfg.ID]; prev != nil {
		prev()
	}
	s.cancels[cfg.ID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, cfg.ID)
		s.mu.Unlock()
		cancel()
	}()

	s.setStatus(cfg.ID, ConnConnecting, "")

	all := messages
	if projCtx != nil {
		all = append([]ChatMessage{{Role: "system", Content: contextPrompt(projCtx)}}, messages...)
	}
	body, err := json.Marshal(map[string]any{
		"model":    "openclaw",
		"stream":   true,
		"messages": all,
	})
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to encode chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Connection.Gateway+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-openclaw-agent-id", "main")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.setStatus(cfg.ID, ConnDisconnected, "")
			return nil
		}
		s.setStatus(cfg.ID, ConnError, err.Error())
		return cerr.NewError(cerr.Unavailable, "agent gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
		s.setStatus(cfg.ID, ConnError, msg)
		return cerr.NewError(cerr.Unavailable, msg, nil)
	}

	s.setStatus(cfg.ID, ConnConnected, "")
	s.touchPing(cfg.ID)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onChunk(chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			s.setStatus(cfg.ID, ConnDisconnected, "")
			return nil
		}
		s.setStatus(cfg.ID, ConnError, err.Error())
		clog.AddError(ctx, err)
		return cerr.NewError(cerr.Unavailable, "agent stream interrupted", err)
	}
	return nil
}

func contextPrompt(ctx *project.Context) string {
	lines := []string{
		fmt.Sprintf("You are assisting with the project %q located at %s.", ctx.Name, ctx.Root),
		"",
		"Project capabilities:",
	}
	if ctx.HasOpenSpec {
		lines = append(lines, "- OpenSpec: spec-driven development")
	}
	if ctx.HasBeads {
		lines = append(lines, "- Beads: task graph management")
	}
	if ctx.HasGit {
		lines = append(lines, "- Git: version control")
	}
	lines = append(lines,
		"",
		"Available commands:",
		"- /new <desc>: create a new change",
		"- /plan [change]: generate tasks from a change",
		"- /seed [change]: import tasks into the task graph",
		"- /assign <task> <agent>: assign a task",
		"- /status: show project status",
		"- /approve <task>: approve a task",
		"- /reject <task> [reason]: reject a task",
	)
	return strings.Join(lines, "\n")
}
