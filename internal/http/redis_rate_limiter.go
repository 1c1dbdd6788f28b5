package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisRateKeyPrefix = "deskpulse:ratelimit:"
	redisRateTimeout   = 250 * time.Millisecond
)

// redisRateLimiter shares fixed windows between API instances. Each Allow is
// one MULTI/EXEC round trip; on Redis errors the request is let through.
type redisRateLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisRateLimiter connects to Redis and verifies the connection.
func NewRedisRateLimiter(ctx context.Context, addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &redisRateLimiter{client: client, logger: logger.With("component", "rate_limiter")}, nil
}

func (rl *redisRateLimiter) Allow(ctx context.Context, key string, rule rateRule) rateDecision {
	if rule.limit <= 0 {
		return rateDecision{allowed: true}
	}
	rule = rule.normalized()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisRateTimeout)
	defer cancel()

	redisKey := redisRateKeyPrefix + key
	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, rule.window)
		pttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		rl.logger.Warn("rate limit check failed", "key", key, "error", err)
		return rateDecision{allowed: true}
	}
	ttl := pttl.Val()
	if ttl <= 0 {
		ttl = rule.window
	}
	count := int(incr.Val())
	return rateDecision{
		allowed:   count <= rule.limit,
		count:     count,
		windowEnd: time.Now().Add(ttl),
	}
}

func (rl *redisRateLimiter) Close() {
	_ = rl.client.Close()
}
