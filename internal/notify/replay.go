package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ReplayGuard claims a key once per TTL.
type ReplayGuard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisReplayGuard implements ReplayGuard using Redis SETNX semantics.
type RedisReplayGuard struct {
	Client redis.UniversalClient
	Prefix string
}

// Claim reports whether key was unclaimed and claims it for ttl.
func (r RedisReplayGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	return r.Client.SetNX(ctx, r.Prefix+key, "1", ttl).Result()
}

// Release removes the claim so a redelivery is processed again.
func (r RedisReplayGuard) Release(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, r.Prefix+key).Err()
}
