package ports

import (
	"context"

	"clipforge/internal/models"
)

// JobStore persists render job records.
//
// Create fails with CONFLICT when the id exists. Save writes the record
// unless the stored one is already completed or failed, which is CONFLICT.
// Get fails with NOT_FOUND when the id does not exist. List returns the
// newest jobs first.
type JobStore interface {
	Create(ctx context.Context, job models.Job) error
	Save(ctx context.Context, job models.Job) error
	Get(ctx context.Context, id string) (models.Job, error)
	List(ctx context.Context, limit int) ([]models.Job, error)
}
