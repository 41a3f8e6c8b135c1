// Package engine selects the render engine a process drives.
package engine

import (
	"fmt"

	"clipforge/internal/config"
	"clipforge/internal/engine/local"
	"clipforge/internal/engine/remote"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/ports"
)

// Engine is a render engine that can also report readiness.
type Engine interface {
	ports.Engine
	ports.HealthChecker
}

// New returns the engine named by RENDER_ENGINE.
func New(cfg config.Config, log *logger.Logger) (Engine, error) {
	switch cfg.Engine {
	case "", config.EngineLocal:
		return local.New(local.Options{
			ScratchDir: cfg.ScratchDir,
			FFmpegBin:  cfg.FFmpegBin,
			Log:        log,
		}), nil
	case config.EngineRemote:
		if cfg.RendererBaseURL == "" {
			return nil, errors.Validation("RENDERER_HTTP_BASEURL is required for the remote engine")
		}
		return remote.NewClient(cfg.RendererBaseURL, log), nil
	default:
		return nil, errors.Validation(fmt.Sprintf("unknown render engine: %s", cfg.Engine))
	}
}
