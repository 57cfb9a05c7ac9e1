package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pyros-projects/clawde/internal/coordinator"
)

const DefaultHeartbeatInterval = 30 * time.Second

// Handler streams coordinator updates to clients over server-sent
// events. Each connection owns its own heartbeat timer and refresh
// subscription; both are released on disconnect.
type Handler struct {
	coord     *coordinator.Coordinator
	heartbeat time.Duration
}

func NewHandler(coord *coordinator.Coordinator) *Handler {
	return &Handler{coord: coord, heartbeat: DefaultHeartbeatInterval}
}

// NewHandlerWithHeartbeat is for tests.
func NewHandlerWithHeartbeat(coord *coordinator.Coordinator, heartbeat time.Duration) *Handler {
	return &Handler{coord: coord, heartbeat: heartbeat}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()

	state := h.coord.State()
	if state == nil {
		var err error
		state, err = h.coord.Init(ctx)
		if err == nil {
			err = h.coord.StartWatching(ctx)
		}
		if err != nil {
			// The one user-visible failure: an explicit error event, then
			// the connection closes.
			writeEvent(w, "error", map[string]any{"error": err.Error()})
			flusher.Flush()
			return
		}
	}

	writeEvent(w, "init", map[string]any{
		"tasks":   len(state.Tasks),
		"changes": len(state.Changes),
		"events":  len(state.Events),
		"agents":  len(state.Agents),
		"project": state.Project.Name,
	})
	flusher.Flush()

	updates := make(chan *coordinator.ProjectState, 8)
	unsubscribe := h.coord.OnRefresh(func(s *coordinator.ProjectState) {
		select {
		case updates <- s:
		default:
			// Slow client, drop the delta. The next one carries fresh
			// counts anyway.
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-updates:
			writeEvent(w, "update", map[string]any{
				"timestamp":       time.Now().UnixMilli(),
				"tasks":           len(s.Tasks),
				"changes":         len(s.Changes),
				"events":          len(s.Events),
				"tasksByStatus":   taskCounts(s),
				"changesByStatus": changeCounts(s),
			})
			flusher.Flush()
		case <-ticker.C:
			writeEvent(w, "heartbeat", map[string]any{"ts": time.Now().UnixMilli()})
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Warn("failed to encode sse payload", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

func taskCounts(s *coordinator.ProjectState) map[string]int {
	counts := map[string]int{}
	for _, t := range s.Tasks {
		counts[string(t.Status)]++
	}
	return counts
}

func changeCounts(s *coordinator.ProjectState) map[string]int {
	counts := map[string]int{}
	for _, c := range s.Changes {
		counts[string(c.Status)]++
	}
	return counts
}
