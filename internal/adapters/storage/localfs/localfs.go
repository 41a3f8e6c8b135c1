package localfs

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

// videoTypes covers extensions missing from minimal mime tables.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

// LocalFS implements ports.ArtifactStore over the render output directory.
type LocalFS struct {
	root string
}

var _ ports.ArtifactStore = (*LocalFS)(nil)

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

// GetObject opens objectKey under the root. Keys that would escape the root
// are reported as not found.
func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	if err := ctx.Err(); err != nil {
		return nil, "", 0, errors.FromContext(ctx, "localfs.get")
	}
	p, ok := l.path(objectKey)
	if !ok {
		return nil, "", 0, errors.NotFound("object", objectKey)
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", 0, errors.NotFound("object", objectKey)
		}
		return nil, "", 0, errors.Wrap(err, "localfs.get", "open object")
	}

	st, statErr := f.Stat()
	if statErr == nil {
		if st.IsDir() {
			f.Close()
			return nil, "", 0, errors.NotFound("object", objectKey)
		}
		size = st.Size()
	}

	// Prefer extension-based type. If empty, sniff first bytes.
	ext := strings.ToLower(filepath.Ext(p))
	contentType = videoTypes[ext]
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, io.SeekStart)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

func (l *LocalFS) path(objectKey string) (string, bool) {
	if objectKey == "" {
		return "", false
	}
	clean := filepath.Clean("/" + filepath.FromSlash(objectKey))
	p := filepath.Join(l.root, clean)
	rel, err := filepath.Rel(l.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return p, true
}
