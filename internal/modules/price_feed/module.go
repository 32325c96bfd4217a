package price_feed

import (
	"context"
	"time"

	"streak_bot/internal/exchange"
	"streak_bot/internal/models"
	"streak_bot/internal/modules/config"
	healthsvc "streak_bot/internal/modules/health/service"
	"streak_bot/internal/modules/price_feed/service"
	"streak_bot/internal/notify"
	"streak_bot/pkg/logger"

	"go.uber.org/fx"
)

func NewStream(
	cfg *config.Config,
	loc *time.Location,
	boot *exchange.HTTPBootstrapper,
	n notify.Notifier,
	state *healthsvc.State,
	out chan models.MarketEvent,
) *service.Stream {
	return service.NewStream(service.Config{
		Endpoint:         exchange.Endpoint{BaseURL: cfg.Feed.BaseURL},
		Session:          cfg.Session.Exchange(),
		CheckFromSecond:  cfg.Feed.CheckFromSecond,
		CheckUntilSecond: cfg.Feed.CheckUntilSecond,
		HistorySize:      cfg.Feed.HistorySize,
		NotifyThreshold:  cfg.Feed.NotifyThreshold,
		SuggestThreshold: cfg.Feed.SuggestThreshold,
		RestartDelay:     cfg.Feed.RestartDelay,
		Location:         loc,
	}, boot, nil, n, state, out)
}

// Module поднимает ценовой фид и отдаёт рыночные события супервизору.
func Module() fx.Option {
	return fx.Module("price_feed",
		fx.Provide(
			func() chan models.MarketEvent {
				// общий буфер рыночных событий
				return make(chan models.MarketEvent, 64)
			},
			func(ch chan models.MarketEvent) <-chan models.MarketEvent { return ch },
			NewStream,
			func(s *service.Stream) notify.Feed { return s },
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Stream) {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						defer close(done)
						if err := s.Run(ctx); err != nil {
							logger.Error("[FEED] stopped: %v", err)
						}
					}()
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					cancel()
					select {
					case <-done:
					case <-stopCtx.Done():
						return stopCtx.Err()
					}
					return nil
				},
			})
		}),
	)
}
