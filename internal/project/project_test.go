package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

const twoCompositions = `
name: test-project
compositions:
  - id: Square
    component: caption-overlay
    width: 1080
    height: 1080
    fps: 25
    durationInFrames: 100
    defaultProps:
      caption: default caption
    props:
      videoUrl: {type: url, required: true}
      caption: {type: string, required: true}
  - id: Wide
    component: caption-overlay
    width: 1920
    height: 1080
    fps: 30
    durationInFrames: 60
`

func TestDefaultManifest(t *testing.T) {
	m, err := ParseManifest(DefaultManifest())
	require.NoError(t, err)

	c, ok := m.Composition("SocialMediaVideo")
	require.True(t, ok)
	assert.Equal(t, 1080, c.Width)
	assert.Equal(t, 1920, c.Height)
	assert.Equal(t, 30, c.FPS)
	assert.Equal(t, 450, c.DurationInFrames)
	assert.Equal(t, "caption-overlay", c.Component)
	assert.True(t, c.Props["videoUrl"].Required)
	assert.False(t, c.Props["scriptText"].Required)
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty", "", "empty"},
		{"not yaml", "compositions: [", "parse project source"},
		{"unknown field", "name: x\nbogus: 1\ncompositions: []", "parse project source"},
		{"no compositions", "name: x\ncompositions: []", "no compositions"},
		{"duplicate id", "compositions:\n- {id: A, width: 2, height: 2, fps: 1, durationInFrames: 1}\n- {id: A, width: 2, height: 2, fps: 1, durationInFrames: 1}", "duplicate"},
		{"odd size", "compositions:\n- {id: A, width: 3, height: 2, fps: 1, durationInFrames: 1}", "even"},
		{"zero fps", "compositions:\n- {id: A, width: 2, height: 2, fps: 0, durationInFrames: 1}", "fps"},
		{"bad prop type", "compositions:\n- {id: A, width: 2, height: 2, fps: 1, durationInFrames: 1, props: {x: {type: int}}}", "unknown type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildDefaultProject(t *testing.T) {
	b := NewBuilder(t.TempDir(), nil)

	h1, err := b.Build(context.Background(), "", ports.BuildOptions{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(h1.Location, BundleFile))
	assert.Regexp(t, `^bundle-[0-9a-f]{16}$`, h1.ID)

	h2, err := b.Build(context.Background(), "", ports.BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, h1.Location, h2.Location, "unchanged source must map to the same bundle")

	entries, err := os.ReadDir(h1.Location)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files may be left behind")
}

func TestBuildFromFileAndDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(twoCompositions), 0o644))
	b := NewBuilder(t.TempDir(), nil)

	fromDir, err := b.Build(context.Background(), dir, ports.BuildOptions{})
	require.NoError(t, err)
	fromFile, err := b.Build(context.Background(), filepath.Join(dir, ManifestFile), ports.BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, fromDir.ID, fromFile.ID)
}

func TestBuildFailures(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("compositions: ["), 0o644))

	tests := []struct {
		name  string
		entry string
		opts  ports.BuildOptions
	}{
		{"missing entry point", filepath.Join(dir, "nope.yaml"), ports.BuildOptions{}},
		{"directory without manifest", dir, ports.BuildOptions{}},
		{"invalid yaml", broken, ports.BuildOptions{}},
		{"override for unknown composition", "", ports.BuildOptions{Overrides: map[string]ports.CompositionOverride{"Nope": {FPS: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(t.TempDir(), nil).Build(context.Background(), tt.entry, tt.opts)
			require.Error(t, err)
			assert.Equal(t, errors.CodeBuild, errors.GetCode(err))
		})
	}
}

func TestBuildCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBuilder(t.TempDir(), nil).Build(ctx, "", ports.BuildOptions{})
	assert.Equal(t, errors.CodeCanceled, errors.GetCode(err))
}

func TestBuildOverridesChangeBundle(t *testing.T) {
	b := NewBuilder(t.TempDir(), nil)
	plain, err := b.Build(context.Background(), "", ports.BuildOptions{})
	require.NoError(t, err)

	short, err := b.Build(context.Background(), "", ports.BuildOptions{
		Overrides: map[string]ports.CompositionOverride{"SocialMediaVideo": {DurationInFrames: 90}},
	})
	require.NoError(t, err)
	assert.NotEqual(t, plain.Location, short.Location)

	desc, err := NewCatalog().Resolve(context.Background(), short, "SocialMediaVideo", map[string]any{
		"videoUrl": "https://example.com/a.mp4",
		"caption":  "Hello",
	})
	require.NoError(t, err)
	assert.Equal(t, 90, desc.DurationInFrames)
	assert.Equal(t, 1920, desc.Height)
}

func TestResolveSocialMediaVideo(t *testing.T) {
	h, err := NewBuilder(t.TempDir(), nil).Build(context.Background(), "", ports.BuildOptions{})
	require.NoError(t, err)

	req := models.RenderRequest{VideoURL: "https://example.com/a.mp4", Caption: "Hello"}.Normalize()
	desc, err := NewCatalog().Resolve(context.Background(), h, "SocialMediaVideo", req.Inputs())
	require.NoError(t, err)

	assert.Equal(t, "SocialMediaVideo", desc.ID)
	assert.Equal(t, 1080, desc.Width)
	assert.Equal(t, 1920, desc.Height)
	assert.Equal(t, 30, desc.FPS)
	assert.Equal(t, 450, desc.DurationInFrames)
	assert.Equal(t, map[string]any{
		"videoUrl":   "https://example.com/a.mp4",
		"caption":    "Hello",
		"scriptText": "Hello",
	}, desc.BoundInputs)

	back, err := DecodeRequest(desc.BoundInputs)
	require.NoError(t, err)
	assert.Equal(t, req, back)
}

func TestResolveErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(twoCompositions), 0o644))
	h, err := NewBuilder(t.TempDir(), nil).Build(context.Background(), dir, ports.BuildOptions{})
	require.NoError(t, err)
	cat := NewCatalog()

	tests := []struct {
		name   string
		id     string
		inputs map[string]any
		code   errors.Code
	}{
		{"unknown composition", "Vertical", nil, errors.CodeCompositionNotFound},
		{"missing required url", "Square", map[string]any{"caption": "x"}, errors.CodeInvalidParameters},
		{"relative url", "Square", map[string]any{"videoUrl": "a.mp4"}, errors.CodeInvalidParameters},
		{"non string prop", "Square", map[string]any{"videoUrl": 42}, errors.CodeInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cat.Resolve(context.Background(), h, tt.id, tt.inputs)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestResolveAppliesDefaultsAndDropsUndeclared(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(twoCompositions), 0o644))
	h, err := NewBuilder(t.TempDir(), nil).Build(context.Background(), dir, ports.BuildOptions{})
	require.NoError(t, err)

	desc, err := NewCatalog().Resolve(context.Background(), h, "Square", map[string]any{
		"videoUrl": "https://example.com/a.mp4",
		"caption":  "",
		"extra":    "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "default caption", desc.BoundInputs["caption"])
	assert.NotContains(t, desc.BoundInputs, "extra")
	assert.Equal(t, 25, desc.FPS)
}

func TestOpenBundleMissing(t *testing.T) {
	_, err := NewCatalog().Resolve(context.Background(), models.ProjectHandle{Location: t.TempDir()}, "SocialMediaVideo", nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeBuild, errors.GetCode(err))
}
