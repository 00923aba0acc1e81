package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/vsdesk/internal/collections"
	"github.com/MrSnakeDoc/vsdesk/internal/config"
	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/redis"
	"github.com/MrSnakeDoc/vsdesk/internal/store"
	"github.com/MrSnakeDoc/vsdesk/internal/store/memory"
)

// OpenStore opens and migrates the configured store. When the engine cannot
// be reached and the fallback is enabled, an in-memory store is returned
// and the returned Storage is marked degraded. Newer schemas are never
// papered over.
func OpenStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*recordstore.Opener, *recordstore.Store, deps.Storage, error) {
	opts := store.Options{
		Log: log,
		Redis: redis.ConnectOptions{
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		},
	}

	log.Info("opening store",
		logger.String("scheme", store.Scheme(cfg.StoreDSN)),
		logger.String("dsn", config.RedactDSN(cfg.StoreDSN)))

	opener := recordstore.NewOpener(func(ctx context.Context) (recordstore.Engine, error) {
		return store.Open(ctx, cfg.StoreDSN, opts)
	}, collections.Migrations, log)

	s, err := opener.Open(ctx)
	if err == nil {
		return opener, s, deps.Storage{Engine: s.Engine(), SchemaVersion: s.SchemaVersion()}, nil
	}
	if !cfg.FallbackToMemory || !errors.Is(err, recordstore.ErrStorageUnavailable) {
		return nil, nil, deps.Storage{}, fmt.Errorf("open store: %w", err)
	}

	log.Warn("store unavailable, falling back to memory; changes will not survive a restart",
		logger.Error(err))
	fallback := recordstore.NewOpener(func(context.Context) (recordstore.Engine, error) {
		return memory.New(), nil
	}, collections.Migrations, log)
	s, ferr := fallback.Open(ctx)
	if ferr != nil {
		return nil, nil, deps.Storage{}, errors.Join(err, ferr)
	}
	return fallback, s, deps.Storage{
		Engine:        s.Engine(),
		SchemaVersion: s.SchemaVersion(),
		Degraded:      true,
		Reason:        err.Error(),
	}, nil
}
