// Package app wires the render service for each binary: configuration,
// stores, engine, pipeline and job manager.
package app

import (
	"context"
	stderrors "errors"
	"os"

	backend "github.com/redis/go-redis/v9"

	"clipforge/internal/config"
	"clipforge/internal/engine"
	"clipforge/internal/httpapi"
	"clipforge/internal/httpapi/handlers"
	"clipforge/internal/jobs"
	"clipforge/internal/output"
	"clipforge/internal/pipeline"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/metrics"
	"clipforge/internal/pkg/shutdown"
	"clipforge/internal/ports"
	"clipforge/internal/storage"
	"clipforge/internal/worker/queue"
)

// Version is reported by /health and the CLI.
const Version = "0.1.0"

// Role selects what a process does with jobs.
type Role string

const (
	// RoleAPI serves HTTP; with JOB_DISPATCH=redis it only records and
	// dispatches jobs.
	RoleAPI Role = "api"
	// RoleWorker renders jobs popped from the Redis queue.
	RoleWorker Role = "worker"
	// RoleCLI renders in process.
	RoleCLI Role = "cli"
)

type App struct {
	Config    config.Config
	Role      Role
	Log       *logger.Logger
	Metrics   *metrics.Metrics
	Store     storage.JobStore
	Artifacts ports.ArtifactStore
	Outputs   *output.Manager
	Engine    engine.Engine
	Pipeline  *pipeline.Pipeline
	Jobs      *jobs.Manager
	Queue     *queue.RedisQueue

	redis *backend.Client
}

// New builds every component the role needs. Any failure closes what was
// already opened.
func New(ctx context.Context, cfg config.Config, log *logger.Logger, role Role) (_ *App, err error) {
	if log == nil {
		log = logger.Discard()
	}
	if verr := cfg.Validate(); verr != nil {
		return nil, errors.WrapWithCode(verr, errors.CodeValidation, "app.config", "invalid configuration")
	}
	if role == RoleWorker && cfg.JobStore == config.StoreMemory {
		return nil, errors.Validation("the queue worker needs a shared JOB_STORE (redis or postgres)")
	}

	a := &App{Config: cfg, Role: role, Log: log, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.closeResources()
		}
	}()

	if a.Outputs, err = output.New(cfg.OutputDir); err != nil {
		return nil, err
	}
	a.Artifacts = storage.NewArtifactStore(a.Outputs.Root())

	if a.Store, err = storage.NewJobStore(ctx, cfg); err != nil {
		return nil, err
	}
	log.Info("job store ready", "store", cfg.JobStore)

	dispatch := role == RoleAPI && cfg.Dispatch == config.DispatchRedis
	if dispatch || role == RoleWorker {
		a.redis = storage.NewRedisClient(cfg)
		if perr := a.redis.Ping(ctx).Err(); perr != nil {
			return nil, errors.WrapWithCode(perr, errors.CodeUnavailable, "app.redis", "redis not reachable").
				WithField("addr", cfg.RedisAddr)
		}
		a.Queue = queue.NewRedisQueue(a.redis, cfg.QueueName)
		log.Info("job queue ready", "queue", cfg.QueueName)
	}

	jd := jobs.Deps{
		Store:   a.Store,
		Metrics: a.Metrics,
		Log:     log,
		Config: jobs.Config{
			Workers:    cfg.Workers,
			QueueSize:  cfg.QueueSize,
			Admission:  cfg.Admission,
			JobTimeout: cfg.JobTimeout,
		},
	}

	if dispatch {
		jd.Dispatcher = a.Queue
	} else {
		if a.Engine, err = engine.New(cfg, log); err != nil {
			return nil, err
		}
		a.Pipeline = pipeline.New(pipeline.Deps{
			Engine:  a.Engine,
			Outputs: a.Outputs,
			Metrics: a.Metrics,
			Log:     log,
			Config: pipeline.Config{
				EntryPoint:        cfg.TemplateEntryPoint,
				CompositionID:     cfg.CompositionID,
				Codec:             cfg.Codec,
				KeepFailedOutputs: cfg.KeepFailedOutputs,
			},
		})
		if cfg.PrebuildProject {
			handle, perr := a.Pipeline.Prepare(ctx)
			if perr != nil {
				return nil, perr
			}
			log.Info("project prebuilt", "project_id", handle.ID, "location", handle.Location)
		}
		jd.Runner = a.Pipeline
	}

	a.Jobs = jobs.New(jd)
	return a, nil
}

// HealthChecks returns the dependency checks behind /health?deep=true.
func (a *App) HealthChecks() map[string]handlers.CheckFunc {
	checks := map[string]handlers.CheckFunc{"job_store": a.Store.Ping}
	checks["output_dir"] = func(context.Context) error {
		st, err := os.Stat(a.Outputs.Root())
		if err != nil {
			return err
		}
		if !st.IsDir() {
			return errors.Internal("output root is not a directory")
		}
		return nil
	}
	if a.Engine != nil {
		checks["engine"] = a.Engine.Check
	}
	if rdb := a.redis; rdb != nil {
		checks["queue"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

// HTTPDeps returns what the HTTP router needs from this app.
func (a *App) HTTPDeps() httpapi.Deps {
	return httpapi.Deps{
		Handlers: handlers.Deps{
			Jobs:        a.Jobs,
			Artifacts:   a.Artifacts,
			Checks:      a.HealthChecks(),
			Log:         a.Log,
			Development: a.Config.IsDevelopment(),
			Service:     "clipforge-api",
			Version:     Version,
		},
		Metrics:        a.Metrics,
		AllowedOrigins: a.Config.CORSAllowedOrigins,
		Log:            a.Log,
	}
}

// RegisterShutdown hands cleanup to sm. Cleanups run last-registered first,
// so anything registered after this (the HTTP server) stops before jobs
// drain, and stores close last.
func (a *App) RegisterShutdown(sm *shutdown.Manager) {
	sm.Register("stores", func(ctx context.Context) error {
		return a.closeResources()
	})
	sm.Register("jobs", func(ctx context.Context) error {
		a.Log.Info("draining render jobs", "stats", a.Jobs.Stats())
		return a.Jobs.Close(ctx)
	})
}

// Close drains jobs and closes stores.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Jobs != nil {
		if err := a.Jobs.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		}
		a.Store = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
		a.redis = nil
	}
	return stderrors.Join(errs...)
}
