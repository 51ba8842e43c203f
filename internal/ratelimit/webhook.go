package ratelimit

import (
	"context"
	"fmt"

	"github.com/harborlabs/cruisesync/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyWebhookLine = "cruisesync:webhook:line:%s"

// WebhookLimiter throttles supplier webhooks per line code. A misfiring
// sender can otherwise keep a line permanently locked and starve the
// queue. Fails open: a limiter error never drops a webhook.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

// NewWebhookLimiter returns nil when rate limiting is disabled or redis
// is not configured; the server treats a nil limiter as always-allow.
func NewWebhookLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *WebhookLimiter {
	if cfg.WebhookRate <= 0 || cfg.WebhookBurst <= 0 || client == nil {
		return nil
	}
	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.WebhookRate,
		burst:  cfg.WebhookBurst,
		log:    log.Named("ratelimit"),
	}
}

// Allow reports whether the line's webhook should be accepted now.
func (l *WebhookLimiter) Allow(ctx context.Context, lineCode string) Result {
	if l == nil {
		return Result{Allowed: true}
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookLine, lineCode), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing webhook",
			zap.String("line_code", lineCode),
			zap.Error(err))
		return Result{Allowed: true}
	}
	return res
}
