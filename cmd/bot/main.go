package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"streak_bot/internal/exchange"
	"streak_bot/internal/guard"
	"streak_bot/internal/modules/config"
	"streak_bot/internal/modules/health"
	"streak_bot/internal/modules/postgres"
	"streak_bot/internal/modules/price_feed"
	"streak_bot/internal/notify"
	"streak_bot/internal/runner"
	"streak_bot/internal/strategy"
	"streak_bot/pkg/logger"
	"streak_bot/pkg/tracing"

	"go.uber.org/fx"
)

const serviceName = "streak_bot"

func main() {
	logger.SetServiceName(serviceName)
	defer logger.Sync()

	app := fx.New(
		fx.NopLogger,
		config.Module(),
		fx.Provide(
			func() *exchange.HTTPBootstrapper {
				return exchange.NewHTTPBootstrapper(&http.Client{Timeout: 15 * time.Second})
			},
		),
		fx.Invoke(startTracing),
		postgres.Module(),
		guard.Module(),
		health.Module(),
		notify.Module(),
		strategy.Module(),
		price_feed.Module(),
		runner.Module(),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}

func startTracing(lc fx.Lifecycle, cfg *config.Config) error {
	if !cfg.Tracing.Enabled {
		return nil
	}
	tracing.SetServiceName(serviceName)
	_, closer, err := tracing.InitTracer(tracing.Config{Host: cfg.Tracing.Host, Port: cfg.Tracing.Port})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closer()
			return nil
		},
	})
	return nil
}
