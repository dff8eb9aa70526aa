package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/itsatony/go-datarepository"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apikeys "github.com/abrahamahn/go-apikeys"
)

// Storage holds the key repository and the counter store of the rate limiter.
type Storage struct {
	Repository   apikeys.Repository
	CounterStore datarepository.DataRepository

	db      *sqlx.DB
	closers []func() error
}

// Close releases every backend connection.
func (s *Storage) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ping checks the key repository when it supports it.
func (s *Storage) Ping(ctx context.Context) error {
	if pinger, ok := s.Repository.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// OpenStorage connects the configured backend. The postgres backend keeps keys
// in postgres and rate limit counters in redis when a redis connection is
// configured, otherwise in process memory.
func OpenStorage(ctx context.Context, cfg *ServerConfig, logger *zap.Logger) (*Storage, error) {
	s := &Storage{}

	switch cfg.Storage.Backend {
	case STORAGE_BACKEND_MEMORY, STORAGE_BACKEND_REDIS:
		store, err := openDataRepository(cfg.Storage.Backend, cfg, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)

		adapter, err := apikeys.NewDataRepositoryAdapter(store, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Repository = adapter
		s.CounterStore = store

	case STORAGE_BACKEND_POSTGRES:
		db, err := apikeys.OpenPostgres(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.closers = append(s.closers, db.Close)

		repo, err := apikeys.NewPostgresRepository(db, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Repository = repo

		counterBackend := STORAGE_BACKEND_MEMORY
		if cfg.Storage.RedisConn != "" {
			counterBackend = STORAGE_BACKEND_REDIS
		}
		counters, err := openDataRepository(counterBackend, cfg, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.closers = append(s.closers, counters.Close)
		s.CounterStore = counters

	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", apikeys.ErrInvalidConfiguration, cfg.Storage.Backend)
	}

	logger.Info("Storage opened", zap.String("backend", cfg.Storage.Backend))
	return s, nil
}

// Migrate applies or rolls back the postgres schema.
func (s *Storage) Migrate(direction string) error {
	if s.db == nil {
		return fmt.Errorf("%w: migrations need the postgres backend", apikeys.ErrInvalidConfiguration)
	}
	return apikeys.RunMigrations(s.db.DB, direction)
}

func openDataRepository(backend string, cfg *ServerConfig, logger *zap.Logger) (datarepository.DataRepository, error) {
	logFn := dataRepositoryLogFunc(logger.Named("datarepository"))

	var (
		repo datarepository.DataRepository
		err  error
	)
	switch backend {
	case STORAGE_BACKEND_REDIS:
		repo, err = datarepository.CreateDataRepository(STORAGE_BACKEND_REDIS,
			datarepository.NewRedisConfig(cfg.Storage.RedisConn, cfg.Storage.KeyPrefix, apikeys.REPO_KEY_SEPARATOR, logFn))
	default:
		repo, err = datarepository.CreateDataRepository(STORAGE_BACKEND_MEMORY,
			datarepository.NewMemoryConfig(cfg.Storage.KeyPrefix, apikeys.REPO_KEY_SEPARATOR, logFn))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s repository: %w", backend, err)
	}
	return repo, nil
}

func dataRepositoryLogFunc(logger *zap.Logger) func(level, msg string) {
	return func(level, msg string) {
		switch level {
		case "error":
			logger.Error(msg)
		case "warn":
			logger.Warn(msg)
		case "debug":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}
}
