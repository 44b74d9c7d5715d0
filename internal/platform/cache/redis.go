package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

// Redis shares cached values across instances. Errors degrade to misses.
type Redis struct {
	log    *logger.Logger
	rdb    *redis.Client
	prefix string
}

func NewRedis(log *logger.Logger, addr, prefix string) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	if prefix == "" {
		prefix = "storybook:cache:"
	}
	return &Redis{log: log.With("component", "RedisCache"), rdb: rdb, prefix: prefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("redis cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return raw, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.rdb.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		r.log.Warn("redis cache set failed", "key", key, "error", err)
	}
}

func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		r.log.Warn("redis cache delete failed", "key", key, "error", err)
	}
}

func (r *Redis) Close() error { return r.rdb.Close() }
