package session

import (
	"context"
	"errors"

	"github.com/fauter/cochera-admin/internal/clock"
	"github.com/fauter/cochera-admin/internal/config"
	"github.com/fauter/cochera-admin/internal/profile"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("session",
	fx.Provide(NewCookies),
	fx.Provide(provideSealer),
	fx.Provide(provideTokenStore),
	fx.Provide(provideEphemeralStore),
	fx.Provide(func(r *profile.Resolver) ProfileResolver { return r }),
	fx.Provide(NewRegistry),
	fx.Invoke(registerRegistryLifecycle),
)

func provideSealer(cfg config.Config, log *zap.Logger) (*Sealer, error) {
	if cfg.TokenSealSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("TOKEN_SEAL_SECRET is required in production")
		}
		log.Warn("TOKEN_SEAL_SECRET not set, stored sessions will not survive a restart")
	}
	return NewSealer(cfg.TokenSealSecret)
}

func provideTokenStore(db *gorm.DB, sealer *Sealer, log *zap.Logger) TokenStore {
	return NewDBTokenStore(db, sealer, log)
}

type ephemeralParams struct {
	fx.In

	Redis *redis.Client `optional:"true"`
	Clock clock.Clock
	Log   *zap.Logger
}

func provideEphemeralStore(p ephemeralParams) EphemeralStore {
	if p.Redis != nil {
		return NewRedisEphemeralStore(p.Redis)
	}
	p.Log.Info("redis disabled, shadow sessions kept in process memory")
	return NewMemoryEphemeralStore(p.Clock)
}

func registerRegistryLifecycle(lc fx.Lifecycle, r *Registry) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			r.Close()
			return nil
		},
	})
}
