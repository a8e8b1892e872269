package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	server "github.com/kazz187/dispatch/internal"
	"github.com/kazz187/dispatch/internal/agentrun"
	"github.com/kazz187/dispatch/internal/assignment"
	"github.com/kazz187/dispatch/internal/config"
	"github.com/kazz187/dispatch/internal/eventbus"
	"github.com/kazz187/dispatch/internal/fanout"
	"github.com/kazz187/dispatch/internal/intake"
	"github.com/kazz187/dispatch/internal/lifecycle"
	"github.com/kazz187/dispatch/internal/monitor"
	"github.com/kazz187/dispatch/internal/pushnotification"
	"github.com/kazz187/dispatch/internal/roster"
	"github.com/kazz187/dispatch/internal/router"
	"github.com/kazz187/dispatch/internal/store"
	"github.com/kazz187/dispatch/pkg/clog"
	"github.com/kazz187/dispatch/pkg/storage"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(clog.NewAttributesHandler(handler))
	slog.SetDefault(logger)

	// Setup storage
	backend, err := newStorage(env.StorageEnv)
	if err != nil {
		slog.Error("failed to create storage", "type", env.StorageEnv.Type, "error", err)
		os.Exit(1)
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}
	st := store.New(backend)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Seed the roster before anything can assign work.
	rosterEnv := config.RosterEnvFromEnv(env)
	rosterWatcher := roster.NewWatcher(st, rosterEnv.File)
	rosterLoaded := true
	if err := rosterWatcher.Load(ctx); err != nil {
		rosterLoaded = false
		slog.Warn("roster not loaded, using stored executors", "path", rosterEnv.File, "error", err)
	}

	bus := eventbus.New()
	scorer := assignment.NewScorer(logger)
	ctrl := lifecycle.NewController(st, scorer, bus)

	llmRouter, err := router.NewAnthropicRouter(config.RouterEnvFromEnv(env))
	if err != nil {
		slog.Error("failed to create router", "error", err)
		os.Exit(1)
	}
	intakeService := intake.NewService(llmRouter, ctrl)

	monitorEnv := config.MonitorEnvFromEnv(env)
	var checkIn monitor.CheckIn = monitor.InlineCheckIn{}
	if monitorEnv.CheckIn == "thread" {
		checkIn = monitor.NewThreadCheckIn(ctrl, bus)
	}
	deadlineMonitor := monitor.NewMonitor(st, ctrl, bus, checkIn, monitorEnv)

	hub := fanout.NewHub(bus)

	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSender := pushnotification.NewSender(vapidEnv, st.PushSubscriptions)
	pushDispatcher := pushnotification.NewDispatcher(bus, pushSender)

	srv := server.NewServer(
		env,
		lifecycle.NewHandler(ctrl),
		intake.NewHandler(intakeService),
		pushnotification.NewHandler(vapidEnv, st.PushSubscriptions, pushSender),
		hub,
	)

	wg := conc.NewWaitGroup()
	wg.Go(func() { hub.Start(ctx) })
	wg.Go(func() { deadlineMonitor.Start(ctx) })
	if pushSender.Enabled() {
		wg.Go(func() { pushDispatcher.Start(ctx) })
	}
	if runnerEnv := config.AgentRunnerEnvFromEnv(env); runnerEnv.Enabled {
		runner := agentrun.NewRunner(ctrl, bus, agentrun.NewClaudeAgent(runnerEnv), runnerEnv)
		wg.Go(func() { runner.Start(ctx) })
	}
	if rosterLoaded && rosterEnv.Watch {
		wg.Go(func() {
			if err := rosterWatcher.Start(ctx); err != nil {
				slog.Error("roster watcher stopped", "error", err)
			}
		})
	}

	wg.Go(func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	})

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give active connections time to finish after stream contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	wg.Wait()
}

func newStorage(env config.StorageEnv) (storage.Storage, error) {
	switch env.Type {
	case "s3":
		return storage.NewS3Storage(context.Background(), env.S3Bucket, env.S3Prefix, env.S3Region)
	case "sqlite":
		return storage.NewSQLiteStorage(env.SQLitePath)
	default:
		return storage.NewLocalStorage(env.BaseDir)
	}
}
