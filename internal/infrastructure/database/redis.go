package database

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the process-wide connection to the ephemeral store.
// It is created at startup and closed on shutdown.
type RedisClient struct{ *redis.Client }

func NewRedis(addr, pass string, db int) *RedisClient {
	return &RedisClient{redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})}
}

func (c *RedisClient) Ping(ctx context.Context) error { return c.Client.Ping(ctx).Err() }
