package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/pkg/errors"
)

func TestGetObject(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "video_1.mp4"), []byte("mp4"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes"), []byte("plain words"), 0o644))
	l := New(root)

	rc, ct, size, err := l.GetObject(context.Background(), "video_1.mp4")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "mp4", string(data))
	assert.Equal(t, "video/mp4", ct)
	assert.EqualValues(t, 3, size)

	rc2, ct, _, err := l.GetObject(context.Background(), "notes")
	require.NoError(t, err)
	defer rc2.Close()
	assert.Contains(t, ct, "text/plain")
	data, err = io.ReadAll(rc2)
	require.NoError(t, err)
	assert.Equal(t, "plain words", string(data), "sniffing must rewind")
}

func TestGetObjectNotFound(t *testing.T) {
	root := t.TempDir()
	l := New(filepath.Join(root, "out"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "out"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret"), []byte("x"), 0o644))

	for _, key := range []string{"missing.mp4", "", "../secret", "."} {
		_, _, _, err := l.GetObject(context.Background(), key)
		assert.Equal(t, errors.CodeNotFound, errors.GetCode(err), key)
	}
}
