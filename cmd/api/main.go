package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intake-portal/internal/bootstrap"
	"intake-portal/internal/shared/config"
	"intake-portal/internal/shared/server"
	"intake-portal/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	telemetry.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	os.Exit(exitCode(err))
}

// exitCode flushes the logger; os.Exit skips deferred calls.
func exitCode(err error) int {
	telemetry.Sync()
	if err != nil {
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config) error {
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		telemetry.Error("api.bootstrap.failed", map[string]any{"error": err})
		return err
	}

	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		telemetry.Info("api.listening", map[string]any{
			"addr":  srv.Addr,
			"env":   cfg.Env,
			"queue": cfg.AnalysisQueue,
			"store": cfg.ObjectStoreType,
		})
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error("api.server.failed", map[string]any{"error": err})
			serveErr = err
		}
	case <-ctx.Done():
		telemetry.Info("api.shutdown.requested", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Error("api.shutdown.failed", map[string]any{"error": err})
	}
	if err := app.Close(shutdownCtx); err != nil {
		telemetry.Error("api.close.failed", map[string]any{"error": err})
	}
	return serveErr
}
