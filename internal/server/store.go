package server

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"cairn/internal/checkpoint"
	"cairn/internal/config"
	"cairn/internal/storage"
)

// OpenStore opens the checkpoint store named by cfg.Driver. Persistent
// drivers are fronted by a read-through cache. The returned closer
// releases the backend connection.
func OpenStore(ctx context.Context, cfg config.CheckpointConfig) (checkpoint.Store, func() error, error) {
	nop := func() error { return nil }

	switch cfg.Driver {
	case config.DriverMemory:
		return checkpoint.NewMemoryStore(), nop, nil

	case config.DriverSQLite, "":
		db, err := storage.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return checkpoint.NewCache(checkpoint.NewSQLiteStore(db)), db.Close, nil

	case config.DriverPostgres:
		pg, err := checkpoint.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return checkpoint.NewCache(pg), func() error { pg.Close(); return nil }, nil

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
		}
		store := checkpoint.NewRedisStore(client, checkpoint.RedisOptions{Prefix: cfg.Prefix, TTL: cfg.TTL})
		return checkpoint.NewCache(store), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown checkpoint driver %q", cfg.Driver)
}
