// Package output owns the on-disk lifecycle of rendered videos: allocating
// a unique path before rendering, validating the file afterwards and
// removing partial output when a render fails.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
)

const (
	filePrefix = "video_"
	fileExt    = ".mp4"
)

// Manager hands out output paths under a single root directory.
type Manager struct {
	root string

	mu       sync.Mutex
	last     int64
	reserved map[string]string // path -> job id
	now      func() time.Time
}

// New returns a Manager rooted at root, creating the directory if needed.
func New(root string) (*Manager, error) {
	if root == "" {
		return nil, errors.Validation("output root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "output.new", "resolve output root")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, "output.new", "create output root").WithField("root", abs)
	}
	return &Manager{
		root:     abs,
		reserved: make(map[string]string),
		now:      time.Now,
	}, nil
}

// Root returns the absolute output directory.
func (m *Manager) Root() string { return m.root }

// Allocate reserves a fresh video_<millis>.mp4 path for jobID. The
// millisecond stamp is strictly increasing within the process, and the
// path is claimed on disk with an exclusive create, so jobs in this or any
// other process sharing the root never get the same file. The claimed file
// is empty until the encoder overwrites it.
func (m *Manager) Allocate(jobID string) (string, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", errors.Wrap(err, "output.allocate", "create output root").WithField("root", m.root)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stamp := m.now().UnixMilli()
	if stamp <= m.last {
		stamp = m.last + 1
	}
	for ; ; stamp++ {
		path := m.pathFor(stamp)
		if _, taken := m.reserved[path]; taken {
			continue
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", errors.Wrap(err, "output.allocate", "claim output path").WithField("path", path)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", errors.Wrap(err, "output.allocate", "claim output path").WithField("path", path)
		}
		m.last = stamp
		m.reserved[path] = jobID
		return path, nil
	}
}

func (m *Manager) pathFor(stamp int64) string {
	return filepath.Join(m.root, filePrefix+strconv.FormatInt(stamp, 10)+fileExt)
}

// Finalize checks the encoder left a non-empty file at path and releases
// the reservation. A missing or empty file is ARTIFACT_MISSING.
func (m *Manager) Finalize(path string) (models.OutputArtifact, error) {
	defer m.Release(path)

	st, err := os.Stat(path)
	if err != nil {
		return models.OutputArtifact{}, errors.ArtifactMissing(path)
	}
	if !st.Mode().IsRegular() || st.Size() == 0 {
		return models.OutputArtifact{}, errors.ArtifactMissing(path).WithField("size_bytes", st.Size())
	}
	return models.OutputArtifact{
		Path:      path,
		Filename:  filepath.Base(path),
		SizeBytes: st.Size(),
	}, nil
}

// Discard removes whatever was written at path and releases the
// reservation. A missing file is not an error.
func (m *Manager) Discard(path string) error {
	defer m.Release(path)
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "output.discard", "remove partial output").WithField("path", path)
	}
	return nil
}

// Release forgets the reservation for path without touching the file.
func (m *Manager) Release(path string) {
	m.mu.Lock()
	delete(m.reserved, path)
	m.mu.Unlock()
}

// Resolve maps a filename back to a path inside the root. Anything that is
// not a bare video_<digits>.mp4 name is rejected.
func (m *Manager) Resolve(filename string) (string, error) {
	if !IsVideoFilename(filename) {
		return "", errors.Validation(fmt.Sprintf("invalid video filename %q", filename))
	}
	return filepath.Join(m.root, filename), nil
}

// IsVideoFilename reports whether name has the video_<digits>.mp4 shape.
func IsVideoFilename(name string) bool {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
		return false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
