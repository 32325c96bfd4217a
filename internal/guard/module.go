package guard

import (
	"context"
	"fmt"

	"streak_bot/internal/modules/config"
	"streak_bot/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
)

// New Redis, если задан адрес, иначе guard в памяти.
func New(lc fx.Lifecycle, cfg *config.Config) (Guard, error) {
	if cfg.Redis.Addr == "" {
		logger.Info("[GUARD] redis is not configured, in-memory order guard")
		return NewMemory(cfg.Redis.TTL), nil
	}

	g := NewRedis(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}), cfg.Redis.Prefix, cfg.Redis.TTL)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := g.Ping(ctx); err != nil {
				return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return g.Close()
		},
	})
	return g, nil
}

func Module() fx.Option {
	return fx.Module("guard", fx.Provide(New))
}
