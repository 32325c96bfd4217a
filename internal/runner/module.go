package runner

import (
	"context"

	"streak_bot/internal/exchange"
	"streak_bot/internal/guard"
	"streak_bot/internal/models"
	"streak_bot/internal/modules/config"
	healthsvc "streak_bot/internal/modules/health/service"
	"streak_bot/internal/notify"
	"streak_bot/internal/store"
	"streak_bot/internal/strategy"
	"streak_bot/pkg/logger"

	"go.uber.org/fx"
)

func NewConfig(cfg *config.Config) Config {
	loc, _ := cfg.Location()
	return Config{
		PairID:            cfg.Trade.PairID,
		Wallet:            cfg.Trade.Wallet,
		OrderCutoffSecond: cfg.Trade.OrderCutoffSecond,
		MaxParallel:       cfg.Trade.MaxParallel,
		SendTimeout:       cfg.Trade.SendTimeout,
		WinMessages:       cfg.Messages.Win,
		LoseMessages:      cfg.Messages.Lose,
		Location:          loc,
	}
}

func newSupervisor(
	cfg *config.Config,
	accounts store.Accounts,
	engine *strategy.Engine,
	g guard.Guard,
	n notify.Notifier,
	state *healthsvc.State,
	boot *exchange.HTTPBootstrapper,
	market <-chan models.MarketEvent,
) *Supervisor {
	sessions := NewTradeSessions(boot, nil, exchange.Endpoint{BaseURL: cfg.Trade.BaseURL}, cfg.Session.Exchange())
	return NewSupervisor(NewConfig(cfg), accounts, engine, g, n, state, sessions, market)
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			newSupervisor,
			func(s *Supervisor) notify.Controller { return s },
		),
		fx.Invoke(func(lc fx.Lifecycle, s *Supervisor) {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						defer close(done)
						if err := s.Run(ctx); err != nil {
							logger.Error("[RUNNER] stopped: %v", err)
						}
					}()
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					cancel()
					select {
					case <-done:
						return nil
					case <-stopCtx.Done():
						return stopCtx.Err()
					}
				},
			})
		}),
	)
}
