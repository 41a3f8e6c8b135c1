package storage

import (
	"context"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"clipforge/internal/adapters/jobstore/memory"
	"clipforge/internal/adapters/jobstore/postgres"
	jobredis "clipforge/internal/adapters/jobstore/redis"
	"clipforge/internal/config"
	"clipforge/internal/pkg/errors"
)

// NewRedisClient returns a client for the configured Redis server.
func NewRedisClient(cfg config.Config) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewJobStore opens the job store selected by JOB_STORE and checks that it
// answers.
func NewJobStore(ctx context.Context, cfg config.Config) (JobStore, error) {
	switch cfg.JobStore {
	case "", config.StoreMemory:
		return memory.New(), nil

	case config.StoreRedis:
		store := jobredis.NewFromClient(NewRedisClient(cfg))
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil

	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store := postgres.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil

	default:
		return nil, errors.Validation(fmt.Sprintf("unknown job store: %s", cfg.JobStore))
	}
}
