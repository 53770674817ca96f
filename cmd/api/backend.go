package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"rex/api/internal/config"
	"rex/api/internal/store"
	"rex/api/internal/store/memory"
	"rex/api/internal/store/postgres"
	"rex/api/internal/store/redisstore"
	"rex/api/internal/store/tablestorage"
)

func openBackend(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Warnw("Using the in-memory store; data is lost on restart")
		return memory.New(), nil
	case config.BackendTableStorage:
		return tablestorage.Open(ctx, cfg.TableStorageConnectionString, log)
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL, log)
	case config.BackendRedis:
		return redisstore.Open(ctx, cfg.RedisURL, log)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
