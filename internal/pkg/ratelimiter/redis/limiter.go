package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jurisdesk/atendimento/internal/pkg/ratelimiter"
)

type RedisLimiter struct {
	client *redis.Client
}

func NewLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow usa janela fixa: INCR + EXPIRE na primeira requisição da janela.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*ratelimiter.Result, error) {
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.TTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("ratelimiter: %w", err)
	}

	count := int(incr.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	reset := time.Now().Add(ttl.Val())
	res := &ratelimiter.Result{
		Allowed:   count <= limit,
		Remaining: remaining,
		Reset:     reset,
	}
	if !res.Allowed {
		res.RetryAfter = ttl.Val()
	}

	return res, nil
}
