package redis

import (
	"context"
	"fmt"
	"time"

	"coldtrack-sync/common/config"

	"github.com/go-redis/redis/v8"
)

// Client alias so callers need not import go-redis directly
type Client = redis.Client

// Nil is returned by reads of missing keys
const Nil = redis.Nil

const pingTimeout = 5 * time.Second

// NewRedisClient creates a client from config. The connection is lazy; call
// Ping to fail fast.
func NewRedisClient(cfg *config.RedisConfig) *Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  pingTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// Ping checks connectivity, bounded by pingTimeout
func Ping(ctx context.Context, client *Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}
	return nil
}

func Close(client *Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
