package main

import (
	"context"
	"errors"

	"clipforge/internal/app"
	"clipforge/internal/config"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/shutdown"
	"clipforge/internal/worker"
)

func main() {
	dotenvErr := config.LoadDotEnv()
	cfg := config.Load()

	log := logger.New(cfg.Logger("clipforge-worker"))
	if dotenvErr != nil {
		log.Warn("ignoring unreadable .env file", "error", dotenvErr.Error())
	}

	log.Info("starting clipforge worker",
		"version", app.Version,
		"engine", cfg.Engine,
		"job_store", cfg.JobStore,
		"queue", cfg.QueueName,
		"workers", cfg.Workers,
	)

	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	a, err := app.New(context.Background(), cfg, log, app.RoleWorker)
	if err != nil {
		log.LogFatal("failed to initialize render worker", err)
	}
	a.RegisterShutdown(shutdownMgr)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})

	// Registered last so the consumer stops before the pool drains.
	shutdownMgr.Register("queue-consumer", func(context.Context) error {
		cancel()
		<-stopped
		return nil
	})

	go func() {
		defer close(stopped)
		err := worker.Run(ctx, worker.Deps{
			Queue: a.Queue,
			Jobs:  a.Jobs,
			Log:   log,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker stopped", "error", err.Error())
			shutdownMgr.Trigger()
		}
	}()

	shutdownMgr.Wait()
}
