// Package postgres persists render jobs in a PostgreSQL table.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS render_jobs (
	id          TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	data        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS render_jobs_created_at_idx ON render_jobs (created_at DESC, id DESC);
`

// Store implements ports.JobStore on a pgx pool.
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Connect opens a pool for databaseURL and checks it answers.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "jobstore.postgres.connect", "invalid database configuration")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "jobstore.postgres.connect", "database not reachable")
	}
	return pool, nil
}

// EnsureSchema creates the render_jobs table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return s.dbError(ctx, err, "jobstore.postgres.schema")
	}
	return nil
}

func (s *Store) Create(ctx context.Context, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "jobstore.postgres.create", "failed to marshal job")
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO render_jobs (id, state, created_at, updated_at, data)
		VALUES ($1,$2,$3,$4,$5)
	`, job.ID, string(job.State), job.CreatedAt, job.UpdatedAt, data)
	if err != nil {
		if IsUniqueViolation(err) {
			return errors.Conflict("job already exists").WithField("job_id", job.ID)
		}
		return s.dbError(ctx, err, "jobstore.postgres.create")
	}
	return nil
}

func (s *Store) Save(ctx context.Context, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "jobstore.postgres.save", "failed to marshal job")
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO render_jobs (id, state, created_at, updated_at, data)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET state=EXCLUDED.state, updated_at=EXCLUDED.updated_at, data=EXCLUDED.data
		WHERE render_jobs.state NOT IN ($6,$7)
	`, job.ID, string(job.State), job.CreatedAt, job.UpdatedAt, data,
		string(models.JobCompleted), string(models.JobFailed))
	if err != nil {
		return s.dbError(ctx, err, "jobstore.postgres.save")
	}
	if tag.RowsAffected() == 0 {
		return models.FinalStateConflict(job.ID, "")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (models.Job, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM render_jobs WHERE id=$1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, errors.NotFound("job", id)
		}
		return models.Job{}, s.dbError(ctx, err, "jobstore.postgres.get")
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return models.Job{}, errors.Wrap(err, "jobstore.postgres.get", "failed to unmarshal job")
	}
	return job, nil
}

// List returns up to limit jobs, newest first. A non-positive limit
// returns every job.
func (s *Store) List(ctx context.Context, limit int) ([]models.Job, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.Query(ctx, `
		SELECT data
		FROM render_jobs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, lim)
	if err != nil {
		return nil, s.dbError(ctx, err, "jobstore.postgres.list")
	}
	defer rows.Close()

	out := []models.Job{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, s.dbError(ctx, err, "jobstore.postgres.list")
		}
		var job models.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, errors.Wrap(err, "jobstore.postgres.list", "failed to unmarshal job")
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dbError(ctx, err, "jobstore.postgres.list")
	}
	return out, nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return s.dbError(ctx, err, "jobstore.postgres.ping")
	}
	return nil
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) dbError(ctx context.Context, err error, op string) error {
	if ctx.Err() != nil {
		return errors.FromContext(ctx, op)
	}
	if IsUndefinedTable(err) {
		return errors.WrapWithCode(err, errors.CodeUnavailable, op, "render_jobs table missing")
	}
	return errors.WrapWithCode(err, errors.CodeUnavailable, op, "database request failed")
}
