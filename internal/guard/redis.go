package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis guard через SETNX, переживает рестарт процесса.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(accountID, period string) string {
	return fmt.Sprintf("%sorder:%s:%s", r.prefix, accountID, period)
}

func (r *Redis) Acquire(ctx context.Context, accountID, period string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(accountID, period), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("guard.Redis.Acquire %s: %w", accountID, err)
	}
	return ok, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
