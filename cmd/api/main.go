package main

import (
	"context"
	"net/http"
	"time"

	"clipforge/internal/app"
	"clipforge/internal/config"
	"clipforge/internal/httpapi"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/shutdown"
)

func main() {
	dotenvErr := config.LoadDotEnv()
	cfg := config.Load()

	// Initialize logger
	log := logger.New(cfg.Logger("clipforge-api"))
	if dotenvErr != nil {
		log.Warn("ignoring unreadable .env file", "error", dotenvErr.Error())
	}

	log.Info("starting clipforge API",
		"version", app.Version,
		"env", cfg.NodeEnv,
		"engine", cfg.Engine,
		"job_store", cfg.JobStore,
		"dispatch", cfg.Dispatch,
	)

	ctx := context.Background()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	a, err := app.New(ctx, cfg, log, app.RoleAPI)
	if err != nil {
		log.LogFatal("failed to initialize render service", err)
	}
	a.RegisterShutdown(shutdownMgr)

	router := httpapi.NewRouter(a.HTTPDeps())

	// POST /render holds the connection for the whole render, so writes are
	// bounded by RENDER_TIMEOUT rather than a server-wide limit.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Register server shutdown
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		stats := a.Jobs.Stats()
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", cfg.Port,
			"output_dir", cfg.OutputDir,
			"workers", stats.Workers,
			"queue_capacity", stats.Capacity,
			"mode", stats.Mode,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", "error", err.Error())
			shutdownMgr.Trigger()
		}
	}()

	// Wait for shutdown signal
	shutdownMgr.Wait()
}
