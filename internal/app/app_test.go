package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/config"
	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/shutdown"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Port:            "0",
		NodeEnv:         "test",
		OutputDir:       t.TempDir(),
		ScratchDir:      t.TempDir(),
		CompositionID:   "SocialMediaVideo",
		Codec:           "h264",
		PrebuildProject: true,
		Engine:          config.EngineLocal,
		FFmpegBin:       "ffmpeg",
		Workers:         1,
		QueueSize:       2,
		Admission:       config.AdmissionQueue,
		JobTimeout:      time.Minute,
		JobStore:        config.StoreMemory,
		QueueName:       "clipforge:test:jobs",
		Dispatch:        config.DispatchLocal,
	}
}

func TestNew_Local(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), logger.Discard(), RoleAPI)
	require.NoError(t, err)
	defer a.Close(ctx)

	require.NotNil(t, a.Pipeline)
	require.NotNil(t, a.Engine)
	assert.Nil(t, a.Queue)

	handle, ok := a.Pipeline.Project()
	require.True(t, ok, "project should be prebuilt")
	assert.NotEmpty(t, handle.Location)

	stats := a.Jobs.Stats()
	assert.Equal(t, "local", stats.Mode)
	assert.Equal(t, 1, stats.Workers)

	checks := a.HealthChecks()
	assert.Contains(t, checks, "engine")
	assert.NotContains(t, checks, "queue")
	require.NoError(t, checks["job_store"](ctx))
	require.NoError(t, checks["output_dir"](ctx))

	deps := a.HTTPDeps()
	assert.Equal(t, Version, deps.Handlers.Version)
	assert.False(t, deps.Handlers.Development)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers = 0
	_, err := New(context.Background(), cfg, nil, RoleAPI)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "RENDER_WORKERS")
}

func TestNew_WorkerNeedsSharedStore(t *testing.T) {
	_, err := New(context.Background(), testConfig(t), nil, RoleWorker)
	assert.True(t, errors.IsValidation(err))
}

func TestNew_Dispatch(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.JobStore = config.StoreRedis
	cfg.RedisAddr = mr.Addr()
	cfg.Dispatch = config.DispatchRedis

	a, err := New(ctx, cfg, logger.Discard(), RoleAPI)
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Nil(t, a.Engine)
	assert.Nil(t, a.Pipeline)
	require.NotNil(t, a.Queue)
	assert.Equal(t, "dispatch", a.Jobs.Stats().Mode)

	job, err := a.Jobs.Submit(ctx, models.RenderRequest{
		VideoURL:   "https://example.com/bg.mp4",
		Caption:    "hello",
		ScriptText: "script",
	})
	require.NoError(t, err)

	n, err := a.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := a.Store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.State)

	checks := a.HealthChecks()
	assert.NotContains(t, checks, "engine")
	require.NoError(t, checks["queue"](ctx))
}

func TestNew_Worker(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.JobStore = config.StoreRedis
	cfg.RedisAddr = mr.Addr()
	cfg.Dispatch = config.DispatchRedis

	a, err := New(ctx, cfg, logger.Discard(), RoleWorker)
	require.NoError(t, err)
	defer a.Close(ctx)

	// Workers render, so they never dispatch.
	require.NotNil(t, a.Pipeline)
	require.NotNil(t, a.Queue)
	assert.Equal(t, "local", a.Jobs.Stats().Mode)
}

func TestNew_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.JobStore = config.StoreRedis
	cfg.RedisAddr = addr

	_, err := New(context.Background(), cfg, logger.Discard(), RoleAPI)
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
}

func TestRegisterShutdown(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.JobStore = config.StoreRedis
	cfg.RedisAddr = mr.Addr()

	a, err := New(context.Background(), cfg, logger.Discard(), RoleAPI)
	require.NoError(t, err)

	sm := shutdown.NewManager(logger.Discard(), 5*time.Second)
	a.RegisterShutdown(sm)
	sm.Shutdown()
	<-sm.Done()

	_, err = a.Jobs.Submit(context.Background(), models.RenderRequest{
		VideoURL: "https://example.com/bg.mp4", Caption: "c", ScriptText: "s",
	})
	assert.Error(t, err)
	assert.Nil(t, a.Store)
}
