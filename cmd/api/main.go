package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rateshop-backend/internal/bootstrap"
	"rateshop-backend/internal/shared/config"
	"rateshop-backend/internal/shared/server"
	"rateshop-backend/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal("config.load_failed", err)
	}
	telemetry.Init(cfg.LogLevel)

	app, err := bootstrap.Build(cfg, bootstrap.RoleAPI)
	if err != nil {
		fatal("bootstrap.build_failed", err)
	}
	defer app.Close()

	addr := server.Addr(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		telemetry.Info("server.start", map[string]any{
			"addr":          addr,
			"env":           cfg.Env,
			"dispatch_mode": cfg.DispatchMode,
			"result_store":  cfg.ResultStore,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server.failed", err)
		}
	case <-ctx.Done():
		telemetry.Info("server.shutdown", map[string]any{"timeout": shutdownTimeout.String()})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			telemetry.Error("server.shutdown_failed", map[string]any{"error": err})
		}
	}
}

func fatal(event string, err error) {
	telemetry.Error(event, map[string]any{"error": err})
	os.Exit(1)
}
