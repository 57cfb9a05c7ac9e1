package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pyros-projects/clawde/internal/agent"
	"github.com/pyros-projects/clawde/pkg/cerr"
)

type chatRequest struct {
	AgentID  string              `json:"agentId"`
	Messages []agent.ChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

// Chat relays a conversation to an agent gateway. With stream the
// response body carries text chunks as they arrive; otherwise the full
// reply is returned as one JSON document.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if len(req.Messages) == 0 {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "messages are required", nil)
		return
	}

	state, err := s.ensureState(ctx)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to load project", err)
		return
	}

	cfg, ok := defaultAgent(state.Project)
	if req.AgentID != "" {
		ok = false
		for _, a := range state.Project.Config.Agents {
			if a.ID == req.AgentID {
				cfg, ok = a, true
				break
			}
		}
	}
	if !ok {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "no agent with a configured gateway", nil)
		return
	}

	if !req.Stream {
		var out strings.Builder
		if err := s.agents.SendMessage(ctx, cfg, req.Messages, state.Project, func(chunk string) {
			out.WriteString(chunk)
		}); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		cerr.SetJSONResponse(ctx, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": out.String()}},
			},
		})
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	err = s.agents.SendMessage(ctx, cfg, req.Messages, state.Project, func(chunk string) {
		fmt.Fprint(w, chunk)
		if canFlush {
			flusher.Flush()
		}
	})
	if err != nil {
		// Headers are already out; the best we can do is note the failure
		// inline.
		fmt.Fprintf(w, "\n[error: %v]\n", err)
	}
}
