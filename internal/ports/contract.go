package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
)

// RunJobStoreContract verifies that a JobStore implementation honors the
// interface contract. Store adapters call it from their own tests.
func RunJobStoreContract(t *testing.T, store JobStore) {
	ctx := context.Background()
	prefix := fmt.Sprintf("contract-%d", time.Now().UnixNano())
	base := time.Date(2090, 1, 1, 12, 0, 0, 0, time.UTC)

	newJob := func(suffix string, at time.Time) models.Job {
		return models.NewJob(prefix+"-"+suffix, models.RenderRequest{
			VideoURL:   "https://example.com/bg.mp4",
			Caption:    "caption " + suffix,
			ScriptText: "script " + suffix,
		}, at)
	}

	t.Run("Create and Get", func(t *testing.T) {
		job := newJob("get", base)
		require.NoError(t, store.Create(ctx, job))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, job.Request, got.Request)
		assert.Equal(t, models.JobPending, got.State)
		assert.True(t, job.CreatedAt.Equal(got.CreatedAt), "created at %s, got %s", job.CreatedAt, got.CreatedAt)
		assert.Nil(t, got.FinishedAt)
	})

	t.Run("Create Duplicate", func(t *testing.T) {
		job := newJob("dup", base)
		require.NoError(t, store.Create(ctx, job))
		err := store.Create(ctx, job)
		assert.Equal(t, errors.CodeConflict, errors.GetCode(err))
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, prefix+"-missing")
		assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	})

	t.Run("Save Completed", func(t *testing.T) {
		job := newJob("done", base)
		require.NoError(t, store.Create(ctx, job))

		now := base.Add(time.Second)
		for _, st := range []models.JobState{models.JobBundling, models.JobResolvingComposition, models.JobRendering} {
			require.NoError(t, job.Advance(st, now))
		}
		job.Composition = &models.CompositionDescriptor{
			ID: "SocialMediaVideo", Width: 1080, Height: 1920, FPS: 30, DurationInFrames: 450,
			BoundInputs: map[string]any{"caption": "caption done"},
		}
		job.OutputPath = "/tmp/videos/video_1.mp4"
		job.Artifact = &models.OutputArtifact{Path: job.OutputPath, Filename: "video_1.mp4", SizeBytes: 2048}
		require.NoError(t, job.Advance(models.JobCompleted, now.Add(time.Second)))
		require.NoError(t, store.Save(ctx, job))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobCompleted, got.State)
		assert.Equal(t, 1.0, got.Progress)
		assert.Equal(t, job.Artifact, got.Artifact)
		require.NotNil(t, got.Composition)
		assert.Equal(t, 450, got.Composition.DurationInFrames)
		assert.Equal(t, "caption done", got.Composition.BoundInputs["caption"])
		require.NotNil(t, got.FinishedAt)
		assert.True(t, job.FinishedAt.Equal(*got.FinishedAt))
	})

	t.Run("Save Failed", func(t *testing.T) {
		job := newJob("failed", base)
		require.NoError(t, store.Create(ctx, job))
		require.NoError(t, job.Advance(models.JobBundling, base))
		require.NoError(t, job.Fail(errors.BuildFailed("project.yaml", fmt.Errorf("no compositions")), base))
		require.NoError(t, store.Save(ctx, job))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, got.State)
		require.NotNil(t, got.Error)
		assert.Equal(t, string(errors.CodeBuild), got.Error.Code)
		assert.Equal(t, models.JobBundling, got.Error.Stage)
	})

	t.Run("Save Over Final State", func(t *testing.T) {
		job := newJob("final", base)
		require.NoError(t, store.Create(ctx, job))

		canceled := job.Clone()
		require.NoError(t, canceled.Fail(errors.Canceled("jobs.cancel"), base))
		require.NoError(t, store.Save(ctx, canceled))

		// A worker that missed the cancel keeps reporting progress.
		late := job.Clone()
		require.NoError(t, late.Advance(models.JobBundling, base.Add(time.Second)))
		err := store.Save(ctx, late)
		assert.Equal(t, errors.CodeConflict, errors.GetCode(err))

		require.NoError(t, late.Advance(models.JobResolvingComposition, base.Add(time.Second)))
		require.NoError(t, late.Advance(models.JobRendering, base.Add(time.Second)))
		require.NoError(t, late.Advance(models.JobCompleted, base.Add(2*time.Second)))
		err = store.Save(ctx, late)
		assert.Equal(t, errors.CodeConflict, errors.GetCode(err))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, got.State)
		require.NotNil(t, got.Error)
		assert.Equal(t, string(errors.CodeCanceled), got.Error.Code)
	})

	t.Run("List Newest First", func(t *testing.T) {
		// Later than anything an earlier run against the same backend wrote.
		later := time.Now().UTC().Truncate(time.Millisecond).AddDate(100, 0, 0)
		ids := []string{}
		for i := 0; i < 3; i++ {
			job := newJob(fmt.Sprintf("list-%d", i), later.Add(time.Duration(i)*time.Minute))
			require.NoError(t, store.Create(ctx, job))
			ids = append(ids, job.ID)
		}

		jobs, err := store.List(ctx, 2)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, ids[2], jobs[0].ID)
		assert.Equal(t, ids[1], jobs[1].ID)
	})
}
