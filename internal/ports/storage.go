package ports

import (
	"context"
	"io"
)

// ArtifactStore reads finished output files by key. The key is the artifact
// filename relative to the output root.
type ArtifactStore interface {
	Provider() string
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
}
