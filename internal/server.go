package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/pyros-projects/clawde/internal/api"
	"github.com/pyros-projects/clawde/internal/broadcast"
	"github.com/pyros-projects/clawde/internal/config"
	"github.com/pyros-projects/clawde/internal/pushnotification"
	"github.com/pyros-projects/clawde/pkg/cerr"
	"github.com/pyros-projects/clawde/pkg/clog"
)

type Server struct {
	server     *http.Server
	env        *config.Env
	apiServer  *api.Server
	events     *broadcast.Handler
	pushServer *pushnotification.Server
}

func NewServer(
	env *config.Env,
	apiServer *api.Server,
	events *broadcast.Handler,
	pushServer *pushnotification.Server,
) *Server {
	return &Server{
		env:        env,
		apiServer:  apiServer,
		events:     events,
		pushServer: pushServer,
	}
}

// ListenAndServe starts the HTTP server. The provided context is used as
// the base context for all incoming requests via http.Server.BaseContext.
// When ctx is cancelled, every open SSE stream is cancelled too, so the
// server shuts down without waiting for them.
func (s *Server) ListenAndServe(ctx context.Context) error {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		// The SSE stream writes its own body, so it sits outside the
		// JSON response middleware.
		r.Group(func(r chi.Router) {
			r.Use(clog.SlogChiMiddleware())
			r.Get("/events/stream", s.events.ServeHTTP)
		})
		r.Group(func(r chi.Router) {
			r.Use(
				clog.SlogChiMiddleware(),
				cerr.NewJSONResponseChiMiddleware(),
			)
			s.apiServer.Routes(r)
			s.pushServer.Routes(r)
			r.NotFound(func(w http.ResponseWriter, r *http.Request) {
				cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
			})
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)

	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: h2c.NewHandler(cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(mux), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
