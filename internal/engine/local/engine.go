// Package local is the in-process render engine. Projects are built and
// resolved with the project package; frames of the caption overlay are
// rasterized in Go and composited onto the background clip by ffmpeg.
package local

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"clipforge/internal/animation"
	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/ports"
	"clipforge/internal/project"
)

// ComponentCaptionOverlay is the only component this engine can draw.
const ComponentCaptionOverlay = "caption-overlay"

// CodecH264 is the only supported output codec.
const CodecH264 = "h264"

const stderrLines = 20

// Options configures a local Engine.
type Options struct {
	ScratchDir string
	FFmpegBin  string
	Log        *logger.Logger
}

// Engine implements ports.Engine with ffmpeg.
type Engine struct {
	builder *project.Builder
	catalog *project.Catalog
	ffmpeg  string
	log     *logger.Logger
}

var _ ports.Engine = (*Engine)(nil)

// New returns an Engine. FFmpegBin defaults to "ffmpeg" on PATH.
func New(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}
	bin := opts.FFmpegBin
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Engine{
		builder: project.NewBuilder(opts.ScratchDir, log),
		catalog: project.NewCatalog(),
		ffmpeg:  bin,
		log:     log.WithComponent("engine.local"),
	}
}

// BuildProject bundles the project and checks every composition uses a
// component this engine can draw.
func (e *Engine) BuildProject(ctx context.Context, entryPoint string, opts ports.BuildOptions) (models.ProjectHandle, error) {
	h, err := e.builder.Build(ctx, entryPoint, opts)
	if err != nil {
		return models.ProjectHandle{}, err
	}
	b, err := e.catalog.Open(h.Location)
	if err != nil {
		return models.ProjectHandle{}, errors.BuildFailed(entryPoint, err)
	}
	for _, c := range b.Manifest.Compositions {
		if c.Component != ComponentCaptionOverlay {
			return models.ProjectHandle{}, errors.BuildFailed(entryPoint,
				fmt.Errorf("composition %q uses unsupported component %q", c.ID, c.Component))
		}
	}
	return h, nil
}

// ResolveComposition binds inputs to the composition id inside project.
func (e *Engine) ResolveComposition(ctx context.Context, p models.ProjectHandle, id string, inputs map[string]any) (models.CompositionDescriptor, error) {
	return e.catalog.Resolve(ctx, p, id, inputs)
}

// Check reports whether the ffmpeg binary can be found.
func (e *Engine) Check(ctx context.Context) error {
	if _, err := exec.LookPath(e.ffmpeg); err != nil {
		return errors.Unavailable("ffmpeg").WithField("bin", e.ffmpeg)
	}
	return nil
}

// Render encodes in.Composition to in.OutputPath. Progress is the share of
// overlay frames handed to the encoder, held just below 1 until ffmpeg
// exits cleanly. Canceling ctx kills ffmpeg.
func (e *Engine) Render(ctx context.Context, in ports.RenderInput, onProgress ports.ProgressFunc) error {
	if err := errors.FromContext(ctx, "engine.render"); err != nil {
		return err
	}
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	comp := in.Composition
	if in.Codec != "" && in.Codec != CodecH264 {
		return errors.RenderEngine("engine.render", fmt.Errorf("unsupported codec %q", in.Codec))
	}
	if comp.Component != "" && comp.Component != ComponentCaptionOverlay {
		return errors.RenderEngine("engine.render", fmt.Errorf("unsupported component %q", comp.Component))
	}
	if comp.Width <= 0 || comp.Height <= 0 || comp.FPS <= 0 || comp.DurationInFrames <= 0 {
		return errors.RenderEngine("engine.render", fmt.Errorf("composition %q has no renderable geometry", comp.ID))
	}

	inputs := in.Inputs
	if inputs == nil {
		inputs = comp.BoundInputs
	}
	req, err := project.DecodeRequest(inputs)
	if err != nil {
		return err
	}
	src, err := sourceFor(req.VideoURL)
	if err != nil {
		return errors.InvalidParameters("videoUrl", err.Error())
	}

	face, err := newCaptionFace()
	if err != nil {
		return errors.RenderEngine("engine.font", err)
	}
	defer face.Close()
	ov := newOverlay(renderCard(face, req.Caption, comp.Width), comp.Width, comp.Height)

	job := encodeJob{
		Source:           src,
		Width:            comp.Width,
		Height:           comp.Height,
		FPS:              comp.FPS,
		DurationInFrames: comp.DurationInFrames,
		OverlayWidth:     ov.width,
		OverlayHeight:    ov.height,
		OutputPath:       in.OutputPath,
	}

	log := e.log.FromContext(ctx)
	log.Debug("starting ffmpeg", "output", in.OutputPath, "frames", comp.DurationInFrames, "overlay", fmt.Sprintf("%dx%d", ov.width, ov.height))
	start := time.Now()

	stderr := newLastLines(stderrLines)
	cmd := exec.CommandContext(ctx, e.ffmpeg, job.args()...)
	cmd.Stderr = stderr
	cmd.WaitDelay = 5 * time.Second
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.RenderEngine("engine.ffmpeg", err)
	}
	if err := cmd.Start(); err != nil {
		return errors.RenderEngine("engine.ffmpeg", err).WithField("bin", e.ffmpeg)
	}

	total := comp.DurationInFrames
	written := 0
	var writeErr error
	for f := 0; f < total; f++ {
		if ctx.Err() != nil {
			break
		}
		img := ov.frame(animation.Evaluate(f, total))
		if _, writeErr = stdin.Write(img.Pix); writeErr != nil {
			break
		}
		written++
		onProgress(0.99 * float64(written) / float64(total))
	}
	stdin.Close()
	waitErr := cmd.Wait()

	if err := errors.FromContext(ctx, "engine.render"); err != nil {
		return err
	}
	if waitErr != nil {
		return errors.RenderEngine("engine.ffmpeg", fmt.Errorf("%w: %s", waitErr, stderr.String())).
			WithField("frames_written", written)
	}
	if writeErr != nil && written < total {
		log.Warn("ffmpeg stopped reading overlay frames early", "frames_written", written, "error", writeErr)
	}

	onProgress(1)
	log.Info("render encoded", "output", in.OutputPath, "frames", total, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
