package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ragbox/ragbox/config"
	"github.com/ragbox/ragbox/internal/adapters/memory"
	redisadapter "github.com/ragbox/ragbox/internal/adapters/redis"
	"github.com/ragbox/ragbox/internal/data"
	"github.com/ragbox/ragbox/internal/ports"
)

const registrySweepInterval = time.Minute

// Stores holds the persistence adapters selected by configuration.
type Stores struct {
	Users      ports.UserRepository
	Tokens     ports.AccessTokenRepository
	Principals ports.PrincipalStore
	// Registry is nil unless the auth mode is oauth.
	Registry ports.SessionRegistry

	DB    *sql.DB
	Redis redis.UniversalClient

	memRegistry *memory.Registry
	logger      *slog.Logger
}

// StoresConfig contains dependencies for OpenStores.
type StoresConfig struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// OpenStores connects the configured backends. The caller owns the result and
// must Close it.
func OpenStores(ctx context.Context, cfg StoresConfig) (*Stores, error) {
	if cfg.Config == nil {
		return nil, errors.New("stores: config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	s := &Stores{logger: logger}

	if err := s.openPersistence(ctx, appCfg); err != nil {
		return nil, err
	}
	if appCfg.Auth.Mode == config.AuthModeOAuth {
		if err := s.openRegistry(ctx, appCfg); err != nil {
			return nil, errors.Join(err, s.Close())
		}
	}
	return s, nil
}

func (s *Stores) openPersistence(ctx context.Context, cfg *config.AppConfig) error {
	switch cfg.Storage {
	case config.StorageMemory:
		s.logger.WarnContext(ctx, "using in-memory storage; users and access tokens are lost on restart")
		s.Users = memory.NewUserRepository()
		s.Tokens = memory.NewAccessTokenRepository()
		s.Principals = memory.NewPrincipalStore()
		return nil
	case config.StoragePostgres, "":
	default:
		return fmt.Errorf("unsupported storage backend %q", cfg.Storage)
	}

	db, err := ConnectDB(ctx, DatabaseConfig{DBConfig: cfg.Postgres, Logger: s.logger})
	if err != nil {
		return err
	}
	if cfg.Postgres.RunMigrationsOnStart {
		if err = RunMigrations(ctx, db, s.logger); err != nil {
			return errors.Join(err, db.Close())
		}
	} else {
		s.logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	s.DB = db
	s.Users = data.NewUserRepo(db)
	s.Tokens = data.NewAccessTokenRepo(db)
	s.Principals = data.NewPrincipalRepo(db)
	return nil
}

func (s *Stores) openRegistry(ctx context.Context, cfg *config.AppConfig) error {
	oauth := cfg.Auth.OAuth
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		client, err := ConnectRedis(ctx, DatabaseConfig{RedisConfig: cfg.Redis, Logger: s.logger})
		if err != nil {
			return err
		}
		s.Redis = client
		s.Registry = redisadapter.NewSessionStore(client, redisadapter.SessionStoreOptions{
			Prefix:       cfg.Redis.KeyPrefix,
			AuthStateTTL: oauth.AuthStateTTL,
		})
	default:
		s.memRegistry = memory.NewRegistry(memory.RegistryOptions{
			AuthStateTTL: oauth.AuthStateTTL,
			Logger:       s.logger,
		})
		s.Registry = s.memRegistry
	}
	return nil
}

// RunSweeper evicts expired entries from the in-memory registry until ctx is
// canceled. Other registries expire entries themselves, so it just waits.
func (s *Stores) RunSweeper(ctx context.Context) error {
	if s.memRegistry == nil {
		<-ctx.Done()
		return nil
	}
	return s.memRegistry.Run(ctx, registrySweepInterval)
}

// Close releases database and Redis connections.
func (s *Stores) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
