package strategy

import (
	"time"

	"go.uber.org/fx"

	"streak_bot/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			func(cfg *config.Config) *External {
				return NewExternal(cfg.Strategy.Host, cfg.Strategy.Token, cfg.Strategy.Timeout)
			},
			func(ext *External, loc *time.Location) *Engine {
				return NewEngine(ext, loc)
			},
		),
	)
}
