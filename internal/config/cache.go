package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/simp-lee/advocatedir/internal/cache"
)

// SetupCache builds the Store selected by cfg.Cache.Backend. The returned
// closer releases backend connections and is never nil.
func SetupCache(ctx context.Context, cfg *Config, logger *slog.Logger) (cache.Store, io.Closer, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}
	if logger == nil {
		return nil, nil, errors.New("logger is nil")
	}

	switch cfg.Cache.Backend {
	case "", "memory":
		memCfg := cache.DefaultMemoryConfig()
		if cfg.Cache.Capacity > 0 {
			memCfg.Capacity = cfg.Cache.Capacity
		}
		if cfg.Cache.Shards > 0 {
			memCfg.NumShards = cfg.Cache.Shards
		}
		if cfg.Cache.EvictionPercentage > 0 {
			memCfg.EvictionPercentage = cfg.Cache.EvictionPercentage
		}
		memCfg.MaxTTL = cfg.Cache.TTLs().Max()

		store, err := cache.NewMemoryStore(memCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("setup memory cache: %w", err)
		}
		logger.Info("cache ready",
			slog.String("backend", "memory"),
			slog.Int("capacity", memCfg.Capacity),
			slog.Int("shards", memCfg.NumShards),
		)
		return store, nopCloser{}, nil

	case "redis":
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("setup redis cache: %w", err)
		}
		logger.Info("cache ready",
			slog.String("backend", "redis"),
			slog.String("addr", cfg.Redis.Addr),
			slog.Int("db", cfg.Redis.DB),
		)
		return cache.NewRedisStore(client), client, nil

	default:
		return nil, nil, fmt.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
