// Package pipeline runs one render job through its stages:
// bundling, resolving_composition, rendering, then completed or failed.
package pipeline

import (
	"context"
	"time"

	"clipforge/internal/models"
	"clipforge/internal/output"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/metrics"
	"clipforge/internal/ports"
)

// Sink receives a snapshot of the job after every change.
type Sink func(job models.Job)

// Config holds per-process render settings.
type Config struct {
	EntryPoint        string
	CompositionID     string
	Codec             string
	BuildOptions      ports.BuildOptions
	KeepFailedOutputs bool
}

type Deps struct {
	Engine  ports.Engine
	Outputs *output.Manager
	Metrics *metrics.Metrics
	Log     *logger.Logger
	Config  Config
}

// Pipeline drives the engine for each job. The project is built once and
// shared by all jobs.
type Pipeline struct {
	engine  ports.Engine
	outputs *output.Manager
	bundles *BundleCache
	metrics *metrics.Metrics
	log     *logger.Logger
	cfg     Config
	now     func() time.Time
}

func New(d Deps) *Pipeline {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	cfg := d.Config
	if cfg.CompositionID == "" {
		cfg.CompositionID = "SocialMediaVideo"
	}
	if cfg.Codec == "" {
		cfg.Codec = "h264"
	}
	p := &Pipeline{
		engine:  d.Engine,
		outputs: d.Outputs,
		metrics: d.Metrics,
		log:     log.WithComponent("pipeline"),
		cfg:     cfg,
		now:     time.Now,
	}
	p.bundles = NewBundleCache(func(ctx context.Context) (models.ProjectHandle, error) {
		return p.engine.BuildProject(ctx, p.cfg.EntryPoint, p.cfg.BuildOptions)
	}, d.Metrics)
	return p
}

// Prepare builds the project ahead of the first job.
func (p *Pipeline) Prepare(ctx context.Context) (models.ProjectHandle, error) {
	return p.bundles.Get(ctx)
}

// Project returns the built project handle, if any.
func (p *Pipeline) Project() (models.ProjectHandle, bool) {
	return p.bundles.Handle()
}

// Run takes a pending job to a terminal state. The job is owned by Run
// until it returns; sink sees copies. The returned error is the one
// recorded on the job.
func (p *Pipeline) Run(ctx context.Context, job *models.Job, sink Sink) error {
	if sink == nil {
		sink = func(models.Job) {}
	}
	ctx = logger.ContextWithJobID(ctx, job.ID)
	log := p.log.FromContext(ctx)

	// 1. Validate before any stage runs
	if err := job.Request.Validate(); err != nil {
		return p.fail(ctx, job, sink, err)
	}
	req := job.Request.Normalize()

	// 2. Bundle
	if err := p.advance(job, models.JobBundling, sink); err != nil {
		return err
	}
	start := time.Now()
	handle, err := p.bundles.Get(ctx)
	p.metrics.ObserveStage(string(models.JobBundling), time.Since(start))
	if err != nil {
		return p.fail(ctx, job, sink, p.classify(ctx, models.JobBundling, err))
	}
	log.Debug("project ready", "bundle_id", handle.ID)

	// 3. Resolve composition
	if err := p.advance(job, models.JobResolvingComposition, sink); err != nil {
		return err
	}
	start = time.Now()
	desc, err := p.engine.ResolveComposition(ctx, handle, p.cfg.CompositionID, req.Inputs())
	p.metrics.ObserveStage(string(models.JobResolvingComposition), time.Since(start))
	if err != nil {
		return p.fail(ctx, job, sink, p.classify(ctx, models.JobResolvingComposition, err))
	}
	job.Composition = &desc
	log.Debug("composition resolved",
		"composition_id", desc.ID,
		"width", desc.Width,
		"height", desc.Height,
		"fps", desc.FPS,
		"frames", desc.DurationInFrames,
	)

	// 4. Render
	path, err := p.outputs.Allocate(job.ID)
	if err != nil {
		return p.fail(ctx, job, sink, err)
	}
	job.OutputPath = path
	if err := p.advance(job, models.JobRendering, sink); err != nil {
		p.discard(ctx, path)
		return err
	}

	log.Info("rendering", "output", path)
	start = time.Now()
	err = p.render(ctx, job, ports.RenderInput{
		Composition: desc,
		Project:     handle,
		Codec:       p.cfg.Codec,
		OutputPath:  path,
		Inputs:      desc.BoundInputs,
	}, sink)
	p.metrics.ObserveStage(string(models.JobRendering), time.Since(start))
	if err != nil {
		return p.fail(ctx, job, sink, p.classify(ctx, models.JobRendering, err))
	}

	// 5. Finalize
	art, err := p.outputs.Finalize(path)
	if err != nil {
		return p.fail(ctx, job, sink, err)
	}
	job.Artifact = &art

	if err := p.advance(job, models.JobCompleted, sink); err != nil {
		return err
	}
	p.metrics.JobFinished(string(models.JobCompleted), "")
	log.Info("render completed",
		"output", art.Path,
		"size_bytes", art.SizeBytes,
		"duration_ms", job.FinishedAt.Sub(*job.StartedAt).Milliseconds(),
	)
	return nil
}

// render runs the engine while a single goroutine applies progress to the
// job. The highest value reported is applied after the engine returns.
func (p *Pipeline) render(ctx context.Context, job *models.Job, in ports.RenderInput, sink Sink) error {
	fwd := newProgressForwarder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := range fwd.ch {
			p.applyProgress(job, v, sink)
		}
	}()

	err := p.engine.Render(ctx, in, fwd.send)

	last := fwd.close()
	<-done
	if err == nil {
		p.applyProgress(job, last, sink)
	}
	return err
}

func (p *Pipeline) applyProgress(job *models.Job, v float64, sink Sink) {
	if job.SetProgress(v, p.now()) {
		p.metrics.ProgressRecorded()
		sink(job.Clone())
	}
}

func (p *Pipeline) advance(job *models.Job, next models.JobState, sink Sink) error {
	if err := job.Advance(next, p.now()); err != nil {
		return err
	}
	sink(job.Clone())
	return nil
}

// classify gives every stage failure a code. Context endings win over
// whatever the engine reported; coded errors pass through unchanged.
func (p *Pipeline) classify(ctx context.Context, stage models.JobState, err error) error {
	if ctx.Err() != nil {
		return errors.FromContext(ctx, "pipeline."+string(stage))
	}
	var coded *errors.Error
	if errors.As(err, &coded) {
		return err
	}
	switch stage {
	case models.JobBundling:
		return errors.BuildFailed(p.cfg.EntryPoint, err)
	default:
		return errors.RenderEngine("pipeline."+string(stage), err)
	}
}

// fail records err on the job, removes partial output and reports the job.
func (p *Pipeline) fail(ctx context.Context, job *models.Job, sink Sink, err error) error {
	stage := job.State
	if ferr := job.Fail(err, p.now()); ferr != nil {
		return ferr
	}
	if job.OutputPath != "" {
		if p.cfg.KeepFailedOutputs {
			p.outputs.Release(job.OutputPath)
		} else {
			p.discard(ctx, job.OutputPath)
		}
	}
	sink(job.Clone())

	code := string(errors.GetCode(err))
	p.metrics.JobFinished(string(models.JobFailed), code)

	log := p.log.FromContext(ctx).WithStage(string(stage))
	attrs := []any{
		"code", code,
		"op", errors.GetOp(err),
		"error", err.Error(),
	}
	if errors.GetHTTPStatus(err) >= 500 && !errors.IsCode(err, errors.CodeCanceled) {
		log.Error("job failed", attrs...)
	} else {
		log.Warn("job failed", attrs...)
	}
	return err
}

func (p *Pipeline) discard(ctx context.Context, path string) {
	if err := p.outputs.Discard(path); err != nil {
		p.log.FromContext(ctx).Warn("failed to remove partial output", "path", path, "error", err.Error())
	}
}
