package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/saaga0h/sahay-platform/pkg/config"
)

// Connection limits for the settings and timeline traffic
const (
	dialTimeout  = 3 * time.Second
	ioTimeout    = 2 * time.Second
	poolSize     = 8
	minIdleConns = 1
)

type redisClient struct {
	rdb    *redis.Client
	addr   string
	logger *slog.Logger
}

// NewClient creates a go-redis backed Client. No connection is made until
// the first command; call Ping to verify reachability.
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	return &redisClient{
		rdb: redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddress(),
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  dialTimeout,
			ReadTimeout:  ioTimeout,
			WriteTimeout: ioTimeout,
			PoolSize:     poolSize,
			MinIdleConns: minIdleConns,
		}),
		addr:   cfg.RedisAddress(),
		logger: logger,
	}
}

// wrap annotates err with the operation and target, mapping redis.Nil to ErrNotFound
func wrap(op, target string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return fmt.Errorf("%s %s: %w", op, target, ErrNotFound)
	default:
		return fmt.Errorf("redis %s %s: %w", op, target, err)
	}
}

func (r *redisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return wrap("set", key, r.rdb.Set(ctx, key, value, ttl).Err())
}

func (r *redisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	return v, wrap("get", key, err)
}

func (r *redisClient) Del(ctx context.Context, keys ...string) error {
	return wrap("del", fmt.Sprint(keys), r.rdb.Del(ctx, keys...).Err())
}

func (r *redisClient) HSet(ctx context.Context, key string, field string, value interface{}) error {
	return wrap("hset", key+":"+field, r.rdb.HSet(ctx, key, field, value).Err())
}

func (r *redisClient) HGet(ctx context.Context, key string, field string) (string, error) {
	v, err := r.rdb.HGet(ctx, key, field).Result()
	return v, wrap("hget", key+":"+field, err)
}

func (r *redisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrap("hgetall", key, err)
	}
	return v, nil
}

func (r *redisClient) LPush(ctx context.Context, key string, values ...interface{}) error {
	return wrap("lpush", key, r.rdb.LPush(ctx, key, values...).Err())
}

func (r *redisClient) LPushCapped(ctx context.Context, key string, max int64, value interface{}) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, value)
		pipe.LTrim(ctx, key, 0, max-1)
		return nil
	})
	return wrap("lpush capped", key, err)
}

func (r *redisClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := r.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrap("lrange", key, err)
	}
	return v, nil
}

func (r *redisClient) LLen(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.LLen(ctx, key).Result()
	return n, wrap("llen", key, err)
}

func (r *redisClient) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return wrap("ping", r.addr, err)
	}
	r.logger.Debug("Redis reachable", "address", r.addr)
	return nil
}

func (r *redisClient) Close() error {
	r.logger.Info("Closing Redis connection", "address", r.addr)
	return r.rdb.Close()
}
