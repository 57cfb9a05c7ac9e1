package api

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/pyros-projects/clawde/internal/agent"
	"github.com/pyros-projects/clawde/internal/coordinator"
)

// Server exposes the project state and the mutation endpoints consumed
// by the chat command layer. Mutations do not call the coordinator
// directly: the filesystem watcher picks up their effects and triggers
// the refresh.
type Server struct {
	coord  *coordinator.Coordinator
	agents *agent.Service
}

func NewServer(coord *coordinator.Coordinator, agents *agent.Service) *Server {
	return &Server{coord: coord, agents: agents}
}

func (s *Server) Routes(r chi.Router) {
	r.Get("/project", s.GetProject)
	r.Get("/tasks", s.ListTasks)
	r.Get("/tasks/{id}", s.GetTask)
	r.Patch("/tasks/{id}", s.UpdateTask)
	r.Get("/changes", s.ListChanges)
	r.Post("/changes", s.CreateChange)
	r.Post("/changes/{id}/plan", s.PlanChange)
	r.Post("/changes/{id}/seed", s.SeedChange)
	r.Post("/chat", s.Chat)
}

// ensureState lazily initializes the coordinator on the first request
// and starts the watcher.
func (s *Server) ensureState(ctx context.Context) (*coordinator.ProjectState, error) {
	if state := s.coord.State(); state != nil {
		return state, nil
	}
	state, err := s.coord.Init(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.coord.StartWatching(ctx); err != nil {
		return nil, err
	}
	return state, nil
}
