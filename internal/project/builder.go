// Package project packages a YAML project source into a bundle on disk and
// resolves compositions out of it.
package project

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/ports"
)

// BundleFile is the name of the packaged project inside a bundle directory.
const BundleFile = "bundle.json"

// ManifestFile is looked up when the entry point is a directory.
const ManifestFile = "project.yaml"

// bundleDoc is the on-disk form of a built project.
type bundleDoc struct {
	ID         string    `json:"id"`
	EntryPoint string    `json:"entryPoint"`
	Digest     string    `json:"digest"`
	BuiltAt    time.Time `json:"builtAt"`
	Manifest   Manifest  `json:"manifest"`
}

// Builder packages project sources into bundles under a scratch directory.
type Builder struct {
	scratchDir string
	log        *logger.Logger
	now        func() time.Time
}

// NewBuilder returns a Builder writing into scratchDir.
func NewBuilder(scratchDir string, log *logger.Logger) *Builder {
	if log == nil {
		log = logger.Discard()
	}
	return &Builder{
		scratchDir: scratchDir,
		log:        log.WithComponent("project"),
		now:        time.Now,
	}
}

// Build reads the project at entryPoint, applies opts and writes the bundle.
// An empty entryPoint selects the built-in project. The bundle location is
// derived from the source digest, so unchanged sources map to the same
// location.
func (b *Builder) Build(ctx context.Context, entryPoint string, opts ports.BuildOptions) (models.ProjectHandle, error) {
	if err := ctx.Err(); err != nil {
		return models.ProjectHandle{}, errors.FromContext(ctx, "project.build")
	}

	src, err := readSource(entryPoint)
	if err != nil {
		return models.ProjectHandle{}, errors.BuildFailed(entryPoint, err)
	}

	m, err := ParseManifest(src)
	if err != nil {
		return models.ProjectHandle{}, errors.BuildFailed(entryPoint, err)
	}
	if err := applyOverrides(&m, opts.Overrides); err != nil {
		return models.ProjectHandle{}, errors.BuildFailed(entryPoint, err)
	}

	digest := digestOf(src, opts)
	id := "bundle-" + digest[:16]
	dir := filepath.Join(b.scratchDir, id)
	builtAt := b.now().UTC()

	doc := bundleDoc{
		ID:         id,
		EntryPoint: entryPoint,
		Digest:     digest,
		BuiltAt:    builtAt,
		Manifest:   m,
	}
	if err := writeBundle(dir, doc); err != nil {
		return models.ProjectHandle{}, errors.BuildFailed(entryPoint, err)
	}

	b.log.Info("project bundled",
		"bundle_id", id,
		"location", dir,
		"compositions", len(m.Compositions),
	)

	return models.ProjectHandle{
		ID:         id,
		Location:   dir,
		EntryPoint: entryPoint,
		BuiltAt:    builtAt,
	}, nil
}

func readSource(entryPoint string) ([]byte, error) {
	if entryPoint == "" {
		return DefaultManifest(), nil
	}
	st, err := os.Stat(entryPoint)
	if err != nil {
		return nil, fmt.Errorf("entry point: %w", err)
	}
	path := entryPoint
	if st.IsDir() {
		path = filepath.Join(entryPoint, ManifestFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("entry point: %w", err)
	}
	return data, nil
}

func applyOverrides(m *Manifest, overrides map[string]ports.CompositionOverride) error {
	for id, o := range overrides {
		found := false
		for i := range m.Compositions {
			c := &m.Compositions[i]
			if c.ID != id {
				continue
			}
			found = true
			if o.Width > 0 {
				c.Width = o.Width
			}
			if o.Height > 0 {
				c.Height = o.Height
			}
			if o.FPS > 0 {
				c.FPS = o.FPS
			}
			if o.DurationInFrames > 0 {
				c.DurationInFrames = o.DurationInFrames
			}
		}
		if !found {
			return fmt.Errorf("override for unknown composition %q", id)
		}
	}
	return m.Validate()
}

func digestOf(src []byte, opts ports.BuildOptions) string {
	h := sha256.New()
	h.Write(src)
	ids := make([]string, 0, len(opts.Overrides))
	for id := range opts.Overrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		o := opts.Overrides[id]
		fmt.Fprintf(h, "\x00%s:%d:%d:%d:%d", id, o.Width, o.Height, o.FPS, o.DurationInFrames)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeBundle writes bundle.json through a temp file and rename so readers
// never see a partial document.
func writeBundle(dir string, doc bundleDoc) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	tmp, err := os.CreateTemp(dir, BundleFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, BundleFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit bundle: %w", err)
	}
	return nil
}
