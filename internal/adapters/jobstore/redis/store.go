// Package redis stores render jobs in Redis so that API and worker
// processes share one view of every job.
package redis

import (
	"context"
	"encoding/json"
	"time"

	backend "github.com/redis/go-redis/v9"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
)

const (
	defaultPrefix = "clipforge:job:"
	saveAttempts  = 3
)

// Store implements ports.JobStore using Redis. Each job is one JSON value;
// a sorted set scored by creation time backs List.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for job records. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for job records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

func score(job models.Job) float64 {
	return float64(job.CreatedAt.UnixMilli())
}

// Create stores a new job. It fails with CONFLICT when the id is taken.
func (s *Store) Create(ctx context.Context, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "jobstore.redis.create", "failed to marshal job")
	}

	ok, err := s.client.SetNX(ctx, s.key(job.ID), data, s.ttl).Result()
	if err != nil {
		return s.backendError(ctx, err, "jobstore.redis.create")
	}
	if !ok {
		return errors.Conflict("job already exists").WithField("job_id", job.ID)
	}

	if err := s.client.ZAdd(ctx, s.indexKey(), backend.Z{Score: score(job), Member: job.ID}).Err(); err != nil {
		return s.backendError(ctx, err, "jobstore.redis.create")
	}
	return nil
}

// Save overwrites the job record under WATCH, refusing to replace a final
// state.
func (s *Store) Save(ctx context.Context, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "jobstore.redis.save", "failed to marshal job")
	}

	key := s.key(job.ID)
	write := func(tx *backend.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != backend.Nil {
			return err
		}
		if err == nil {
			var stored struct {
				State models.JobState `json:"state"`
			}
			if json.Unmarshal(cur, &stored) == nil && stored.State.IsTerminal() {
				return models.FinalStateConflict(job.ID, stored.State)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score(job), Member: job.ID})
			return nil
		})
		return err
	}

	for attempt := 0; attempt < saveAttempts; attempt++ {
		err = s.client.Watch(ctx, write, key)
		if err != backend.TxFailedErr {
			break
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.IsCode(err, errors.CodeConflict):
		return err
	case err == backend.TxFailedErr:
		return errors.Conflict("job " + job.ID + " changed concurrently").WithField("job_id", job.ID)
	default:
		return s.backendError(ctx, err, "jobstore.redis.save")
	}
}

// Get loads one job.
func (s *Store) Get(ctx context.Context, id string) (models.Job, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if err == backend.Nil {
			return models.Job{}, errors.NotFound("job", id)
		}
		return models.Job{}, s.backendError(ctx, err, "jobstore.redis.get")
	}

	var job models.Job
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return models.Job{}, errors.Wrap(err, "jobstore.redis.get", "failed to unmarshal job")
	}
	return job, nil
}

// List returns up to limit jobs, newest first. Index entries whose record
// has expired are pruned as they are found.
func (s *Store) List(ctx context.Context, limit int) ([]models.Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, s.backendError(ctx, err, "jobstore.redis.list")
	}
	if len(ids) == 0 {
		return []models.Job{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.backendError(ctx, err, "jobstore.redis.list")
	}

	jobs := make([]models.Job, 0, len(vals))
	var stale []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var job models.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, errors.Wrap(err, "jobstore.redis.list", "failed to unmarshal job").WithField("job_id", ids[i])
		}
		jobs = append(jobs, job)
	}
	if len(stale) > 0 {
		s.client.ZRem(ctx, s.indexKey(), stale...)
	}
	return jobs, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.backendError(ctx, err, "jobstore.redis.ping")
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) backendError(ctx context.Context, err error, op string) error {
	if ctx.Err() != nil {
		return errors.FromContext(ctx, op)
	}
	return errors.WrapWithCode(err, errors.CodeUnavailable, op, "redis request failed")
}
