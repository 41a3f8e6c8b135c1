package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/config"
	"clipforge/internal/engine/local"
	"clipforge/internal/engine/remote"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/logger"
)

func TestNew(t *testing.T) {
	e, err := New(config.Config{Engine: config.EngineLocal, ScratchDir: t.TempDir()}, logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &local.Engine{}, e)

	e, err = New(config.Config{Engine: config.EngineRemote, RendererBaseURL: "http://renderer:4000"}, logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &remote.Client{}, e)

	_, err = New(config.Config{Engine: config.EngineRemote}, logger.Discard())
	assert.True(t, errors.IsValidation(err))

	_, err = New(config.Config{Engine: "gpu"}, logger.Discard())
	assert.True(t, errors.IsValidation(err))
}
