package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Decision is the result of one limiter check.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Reset     time.Time
}

// Limiter decides whether an event for key is within its budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// FixedWindow is a Limiter backed by a ulule store.
type FixedWindow struct {
	limiter *limiter.Limiter
}

// NewFixedWindow builds a limiter from a formatted rate such as "120-M".
func NewFixedWindow(store limiter.Store, formatted string) (*FixedWindow, error) {
	rate, err := limiter.NewRateFromFormatted(strings.TrimSpace(formatted))
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", formatted, err)
	}
	return &FixedWindow{limiter: limiter.New(store, rate)}, nil
}

// Allow consumes one unit of key's budget.
func (f *FixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := f.limiter.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		Reset:     time.Unix(res.Reset, 0),
	}, nil
}

// NewRedisStore returns a ulule store shared across instances through Redis.
func NewRedisStore(client *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = "smartpay:ratelimit"
	}
	return limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
}

// NewMemoryStore returns a process-local store.
func NewMemoryStore(prefix string) limiter.Store {
	if prefix == "" {
		prefix = "smartpay:ratelimit"
	}
	return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute})
}
