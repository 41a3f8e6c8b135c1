// Package worker consumes job ids dispatched through Redis and hands them
// to the local job manager.
package worker

import (
	"context"
	"time"

	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/logger"
)

const (
	popGrace     = 30 * time.Second
	retryBackoff = time.Second
)

// Run pops job ids until ctx ends. Admission blocks while the local pool is
// full, so ids stay in Redis for other workers. A popped id is always
// admitted, even when ctx ends while it waits for room.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		popCtx, cancel := context.WithTimeout(ctx, popGrace)
		jobID, err := d.Queue.Pop(popCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}
			log.Warn("queue pop error, retrying",
				"error", err.Error(),
			)
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if jobID == "" {
			continue
		}

		jobCtx := logger.ContextWithJobID(ctx, jobID)
		jobLog := log.WithJobID(jobID)

		err = d.Jobs.Enqueue(context.WithoutCancel(jobCtx), jobID)
		switch {
		case err == nil:
			jobLog.Info("job accepted")
		case errors.IsCode(err, errors.CodeConflict):
			jobLog.Info("job no longer pending, skipping", "error", err.Error())
		case errors.IsNotFound(err):
			jobLog.Warn("job not found in store, skipping")
		default:
			log.LogError(jobCtx, "failed to admit job", err)
		}
	}
}
