package storage

import (
	"context"

	"clipforge/internal/adapters/storage/localfs"
	"clipforge/internal/ports"
)

// JobStore is the job store contract used across API and worker, plus the
// lifecycle hooks of whichever backend serves it.
type JobStore interface {
	ports.JobStore
	Ping(ctx context.Context) error
	Close() error
}

// NewArtifactStore returns read access to finished videos under outputDir.
func NewArtifactStore(outputDir string) ports.ArtifactStore {
	return localfs.New(outputDir)
}
