package ratelimit

import (
	"context"
	"strings"

	"github.com/fauter/cochera-admin/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRedisClient returns nil when Redis is disabled; consumers fall back to
// in-process implementations.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		log.Info("redis disabled, using in-process session storage and limits")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return err
			}
			log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

func provideLimiter(client *redis.Client, cfg *config.DashboardConfigHolder) Limiter {
	if client == nil {
		return NewLocalBucket(cfg.Get().ClientIdleTTL)
	}
	return NewTokenBucket(client)
}

func provideCellLocker(client *redis.Client) CellLocker {
	if client == nil {
		return NewLocalLocker()
	}
	return NewLocker(client)
}
