package ports

import (
	"context"

	"clipforge/internal/models"
)

// ProgressFunc receives render progress as a fraction in [0,1].
// Engines may call it from any goroutine.
type ProgressFunc func(fraction float64)

// CompositionOverride patches a composition when a project is built.
// Zero fields keep the declared value.
type CompositionOverride struct {
	Width            int `json:"width,omitempty"`
	Height           int `json:"height,omitempty"`
	FPS              int `json:"fps,omitempty"`
	DurationInFrames int `json:"durationInFrames,omitempty"`
}

// BuildOptions adjusts how a project is packaged.
type BuildOptions struct {
	Overrides map[string]CompositionOverride `json:"overrides,omitempty"`
}

// RenderInput is everything the engine needs to produce one video file.
type RenderInput struct {
	Composition models.CompositionDescriptor
	Project     models.ProjectHandle
	Codec       string
	OutputPath  string
	Inputs      map[string]any
	Options     map[string]string
}

// Engine is the rasterization and encode engine the pipeline drives.
type Engine interface {
	BuildProject(ctx context.Context, entryPoint string, opts BuildOptions) (models.ProjectHandle, error)
	ResolveComposition(ctx context.Context, project models.ProjectHandle, id string, inputs map[string]any) (models.CompositionDescriptor, error)
	Render(ctx context.Context, in RenderInput, onProgress ProgressFunc) error
}

// HealthChecker is implemented by engines that can report readiness.
type HealthChecker interface {
	Check(ctx context.Context) error
}
