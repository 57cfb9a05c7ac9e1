package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	server "github.com/pyros-projects/clawde/internal"
	"github.com/pyros-projects/clawde/internal/agent"
	"github.com/pyros-projects/clawde/internal/api"
	"github.com/pyros-projects/clawde/internal/broadcast"
	"github.com/pyros-projects/clawde/internal/config"
	"github.com/pyros-projects/clawde/internal/coordinator"
	"github.com/pyros-projects/clawde/internal/eventbus"
	"github.com/pyros-projects/clawde/internal/pushnotification"
	pushsubrepo "github.com/pyros-projects/clawde/internal/pushsubscription/repositoryimpl"
	"github.com/pyros-projects/clawde/pkg/clog"
	"github.com/pyros-projects/clawde/pkg/storage"
)

var (
	app = kingpin.New("clawde-server", "Project dashboard state aggregation server")

	serveCmd  = app.Command("serve", "Start the dashboard server").Default()
	serveRoot = serveCmd.Flag("root", "Project root to watch (overrides CLAWDE_PROJECT_ROOT)").String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewHTTPTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	switch command {
	case serveCmd.FullCommand():
		serve(env)
	}
}

func serve(env *config.Env) {
	root := env.ProjectRoot
	if *serveRoot != "" {
		root = *serveRoot
	}

	// Setup storage
	var store storage.Storage
	var err error
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}

	bus := eventbus.New()
	coord := coordinator.Get(root, bus)
	agents := agent.NewServiceWithBus(bus)

	// Setup push notification
	pushEnv := config.PushEnvFromEnv(env)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)
	pushSender := pushnotification.NewSender(pushEnv, pushSubRepo)
	pushServer := pushnotification.NewServer(pushEnv, pushSubRepo, pushSender)
	pushDispatcher := pushnotification.NewDispatcher(bus, pushSender)

	apiServer := api.NewServer(coord, agents)
	events := broadcast.NewHandler(coord)

	srv := server.NewServer(env, apiServer, events, pushServer)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go pushDispatcher.Start(ctx)

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")
	coord.StopWatching()

	// Give active connections time to finish after stream contexts are
	// cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
