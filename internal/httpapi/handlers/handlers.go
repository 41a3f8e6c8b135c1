package handlers

import (
	"context"

	"clipforge/internal/jobs"
	"clipforge/internal/models"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/ports"
)

// JobService is the job manager as seen by the HTTP layer.
type JobService interface {
	Submit(ctx context.Context, req models.RenderRequest) (models.Job, error)
	Render(ctx context.Context, req models.RenderRequest) (models.Job, error)
	Get(ctx context.Context, id string) (models.Job, error)
	List(ctx context.Context, limit int) ([]models.Job, error)
	Cancel(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) (<-chan models.Job, func(), error)
	Stats() jobs.Stats
}

// CheckFunc checks one dependency for the deep health check.
type CheckFunc func(ctx context.Context) error

type Deps struct {
	Jobs      JobService
	Artifacts ports.ArtifactStore
	Checks    map[string]CheckFunc
	Log       *logger.Logger

	// Development exposes stack traces in /render failures.
	Development bool
	Service     string
	Version     string
}

type Handler struct {
	jobs      JobService
	artifacts ports.ArtifactStore
	checks    map[string]CheckFunc
	log       *logger.Logger
	dev       bool
	service   string
	version   string
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		jobs:      d.Jobs,
		artifacts: d.Artifacts,
		checks:    d.Checks,
		log:       log.WithComponent("http"),
		dev:       d.Development,
		service:   d.Service,
		version:   d.Version,
	}
}
