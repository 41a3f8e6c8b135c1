package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
)

// Jobs dispatched to remote workers live only in the shared store; this
// process follows them by polling it.

func (m *Manager) submitRemote(ctx context.Context, req models.RenderRequest) (models.Job, error) {
	job, err := m.create(ctx, req)
	if err != nil {
		return models.Job{}, err
	}
	if err := m.dispatch.Dispatch(ctx, job.ID); err != nil {
		derr := errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.dispatch", "failed to hand job to render workers")
		if ferr := job.Fail(derr, m.now()); ferr == nil {
			m.metrics.JobFinished(string(models.JobFailed), string(errors.CodeUnavailable))
			_ = m.save(job)
		}
		return job, derr
	}
	m.log.Info("job dispatched", "job_id", job.ID)
	return job, nil
}

func (m *Manager) waitRemote(ctx context.Context, id string) (models.Job, error) {
	ticker := time.NewTicker(remotePollInterval)
	defer ticker.Stop()
	for {
		job, err := m.store.Get(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return models.Job{}, errors.FromContext(ctx, "jobs.wait")
			}
			return models.Job{}, err
		}
		if job.State.IsTerminal() {
			return job, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return job, errors.FromContext(ctx, "jobs.wait")
		}
	}
}

// cancelRemote can only stop jobs no worker has picked up yet: the job is
// failed in the store and the worker skips it on dequeue.
func (m *Manager) cancelRemote(ctx context.Context, id string) error {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.State != models.JobPending {
		return errors.Conflict(fmt.Sprintf("job %s is %s and can only be canceled while pending", id, job.State)).
			WithField("job_id", id)
	}
	if err := job.Fail(errors.Canceled("jobs.cancel"), m.now()); err != nil {
		return err
	}
	if err := m.store.Save(ctx, job); err != nil {
		return errors.Wrap(err, "jobs.cancel", "failed to persist canceled job")
	}
	m.metrics.JobFinished(string(models.JobFailed), string(errors.CodeCanceled))
	return nil
}

func (m *Manager) subscribeRemote(id string, first models.Job) (<-chan models.Job, func(), error) {
	ch := make(chan models.Job, subscriberBuffer)
	ch <- first
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		defer close(ch)
		ticker := time.NewTicker(remotePollInterval)
		defer ticker.Stop()
		last := first
		for {
			select {
			case <-stop:
				return
			case <-m.baseCtx.Done():
				return
			case <-ticker.C:
			}
			ctx, cancel := context.WithTimeout(m.baseCtx, saveTimeout)
			job, err := m.store.Get(ctx, id)
			cancel()
			if err != nil {
				continue
			}
			if job.State != last.State || job.Progress != last.Progress {
				offer(ch, job)
				last = job
			}
			if job.State.IsTerminal() {
				return
			}
		}
	}()
	return ch, func() { once.Do(func() { close(stop) }) }, nil
}
