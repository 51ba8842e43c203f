package kv

import (
	"github.com/harborlabs/cruisesync/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewClientFromConfig builds the shared redis client, nil when REDIS_URL
// is not set (single node dev mode).
func NewClientFromConfig(cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, using in-memory kv store; locks will not be shared across processes")
		return nil, nil
	}
	return NewRedisClient(cfg.RedisURL)
}

// NewFromConfig builds the shared Store: redis when a client is
// configured, in-memory otherwise.
func NewFromConfig(client *redis.Client) (Store, error) {
	if client == nil {
		return NewMemory(nil), nil
	}
	return NewRedis(client)
}

var Module = fx.Module("kv",
	fx.Provide(NewClientFromConfig),
	fx.Provide(NewFromConfig),
)
