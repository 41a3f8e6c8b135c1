package worker

import (
	"context"

	"clipforge/internal/pkg/logger"
)

// Queue yields job ids; an empty id means nothing arrived in time.
type Queue interface {
	Pop(ctx context.Context) (string, error)
}

// Enqueuer admits a stored pending job to the local worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

type Deps struct {
	Queue Queue
	Jobs  Enqueuer
	Log   *logger.Logger
}
