package notify

import (
	"context"

	"streak_bot/internal/modules/config"
	"streak_bot/pkg/logger"

	"go.uber.org/fx"
)

func New(cfg *config.Config) (Notifier, error) {
	if cfg.Telegram.Token == "" {
		logger.Warn("[NOTIFY] telegram token is empty, messages go to log")
		return NewStdout(), nil
	}
	return NewTelegram(cfg.Telegram)
}

// Module нотифайер; Controller приходит из супервизора, Feed из price_feed.
func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(New),
		fx.Invoke(func(lc fx.Lifecycle, n Notifier, c Controller, f Feed) {
			t, ok := n.(*Telegram)
			if !ok {
				return
			}
			t.SetController(c)
			t.SetFeed(f)

			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					t.Start(ctx)
					return nil
				},
				OnStop: func(context.Context) error {
					cancel()
					t.Stop()
					return nil
				},
			})
		}),
	)
}
