package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/store"
)

// OpenStore returns the document store selected by cfg.StoreDriver and a
// function releasing whatever it connected. rdb is reused by the redis
// driver; when nil a client is dialed from cfg.RedisURL.
func OpenStore(ctx context.Context, cfg *config.Config, rdb *redis.Client, log zerolog.Logger) (store.DocumentStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgresStore(pool), pool.Close, nil
	case config.StoreDriverRedis:
		if rdb != nil {
			return store.NewRedisStore(rdb), func() {}, nil
		}
		client, err := NewRedisClient(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(client), func() { _ = client.Close() }, nil
	case config.StoreDriverMemory:
		log.Warn().Msg("Using in-memory document store, data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
