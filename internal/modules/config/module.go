package config

import (
	"time"

	"streak_bot/pkg/logger"

	"go.uber.org/fx"
)

// Module конфиг и таймзона торгового окна как fx-провайдеры.
// Логгер поднимается здесь, до остальных модулей.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
			func(cfg *Config) (*time.Location, error) { return cfg.Location() },
		),
		fx.Invoke(func(cfg *Config) error { return logger.Init(cfg.LogLevel) }),
	)
}
