// Package memory keeps render jobs in process memory. Records are lost on
// restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
)

// Store is an in-memory ports.JobStore.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
}

// New returns an empty store.
func New() *Store {
	return &Store{jobs: make(map[string]models.Job)}
}

func (s *Store) Create(ctx context.Context, job models.Job) error {
	if err := ctx.Err(); err != nil {
		return errors.FromContext(ctx, "jobstore.memory.create")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return errors.Conflict("job already exists").WithField("job_id", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) Save(ctx context.Context, job models.Job) error {
	if err := ctx.Err(); err != nil {
		return errors.FromContext(ctx, "jobstore.memory.save")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.jobs[job.ID]; ok && cur.State.IsTerminal() {
		return models.FinalStateConflict(job.ID, cur.State)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (models.Job, error) {
	if err := ctx.Err(); err != nil {
		return models.Job{}, errors.FromContext(ctx, "jobstore.memory.get")
	}
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return models.Job{}, errors.NotFound("job", id)
	}
	return job.Clone(), nil
}

// List returns up to limit jobs, newest first. A non-positive limit
// returns every job.
func (s *Store) List(ctx context.Context, limit int) ([]models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(ctx, "jobstore.memory.list")
	}
	s.mu.RLock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports how many jobs are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
