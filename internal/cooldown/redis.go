package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Limiter = (*Redis)(nil)

// Redis stores cooldowns as expiring keys, so they survive restarts.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (time.Duration, error) {
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return 0, fmt.Errorf("set cooldown: %w", err)
	}

	if ok {
		return 0, nil
	}

	left, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("read cooldown: %w", err)
	}

	// Expired between the two calls, or a key without expiry; try once more.
	if left <= 0 {
		ok, err = r.client.SetNX(ctx, key, 1, ttl).Result()
		if err != nil {
			return 0, fmt.Errorf("set cooldown: %w", err)
		}

		if ok {
			return 0, nil
		}

		return ttl, nil
	}

	return left, nil
}

func (r *Redis) Release(ctx context.Context, key string) error {
	err := r.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("delete cooldown: %w", err)
	}

	return nil
}
