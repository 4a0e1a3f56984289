package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/infrastructure/persistence"
	"github.com/felixgeelhaar/entitlekit/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/entitlekit/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/entitlekit/pkg/config"
)

// LaunchCache is an entitlement cache that can also be emptied.
type LaunchCache interface {
	domain.EntitlementCache
	Clear(ctx context.Context) error
}

// stores holds the persistence chosen by ENTITLEKIT_CACHE_BACKEND.
type stores struct {
	cache   LaunchCache
	pending domain.PendingPurchaseStore
	db      *database.DB
	redis   *redis.Client
}

func (s *stores) close() error {
	var firstErr error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openStores builds the entitlement and pending-purchase caches for the
// configured backend. The redis backend keeps pending purchases in files
// under the cache dir; they must survive a cache flush.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendFile, "":
		var enc crypto.Encrypter
		if cfg.CacheKey != "" {
			aes, err := crypto.NewAESGCMFromBase64Key(cfg.CacheKey)
			if err != nil {
				return nil, err
			}
			enc = aes.WithLabel("launch_result")
		}
		logger.Debug("using file cache", "dir", cfg.CacheDir, "encrypted", enc != nil)
		return &stores{
			cache:   persistence.NewFileLaunchCache(cfg.CacheDir, enc),
			pending: persistence.NewFilePendingStore(cfg.CacheDir),
		}, nil

	case config.CacheBackendSQLite:
		db, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite, SQLitePath: cfg.SQLitePath()})
		if err != nil {
			return nil, err
		}
		logger.Debug("using sqlite cache", "path", cfg.SQLitePath())
		return &stores{
			cache:   persistence.NewSQLiteLaunchCache(db.SQL, cfg.ProjectKey),
			pending: persistence.NewSQLitePendingStore(db.SQL),
			db:      db,
		}, nil

	case config.CacheBackendPostgres:
		db, err := database.Open(ctx, database.Config{Driver: database.DriverPostgres, URL: cfg.DatabaseURL})
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		logger.Info("connected to database")
		return &stores{
			cache:   persistence.NewPostgresLaunchCache(db.Pool, cfg.ProjectKey),
			pending: persistence.NewPostgresPendingStore(db.Pool),
			db:      db,
		}, nil

	case config.CacheBackendRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("connected to Redis")
		return &stores{
			cache:   persistence.NewRedisLaunchCache(client, cfg.ProjectKey, cfg.CacheTTL),
			pending: persistence.NewFilePendingStore(cfg.CacheDir),
			redis:   client,
		}, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

// resolveInstallDate prefers the configured value and otherwise uses the
// first-run time recorded in the cache dir.
func resolveInstallDate(cfg *config.Config, now time.Time) (int64, error) {
	if cfg.InstallDate > 0 {
		return cfg.InstallDate, nil
	}
	ts, err := persistence.InstallDate(cfg.CacheDir, now)
	if err != nil {
		return 0, fmt.Errorf("resolve install date: %w", err)
	}
	return ts, nil
}
