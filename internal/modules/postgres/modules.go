package postgres

import (
	"context"
	"fmt"

	"streak_bot/internal/modules/config"
	"streak_bot/internal/store"
	"streak_bot/internal/store/file"
	"streak_bot/internal/store/pg"
	"streak_bot/pkg/db"
	"streak_bot/pkg/logger"

	"go.uber.org/fx"
)

// NewAccounts Postgres при заданном DSN, иначе yaml-файл.
func NewAccounts(lc fx.Lifecycle, cfg *config.Config) (store.Accounts, error) {
	if cfg.DB == "" {
		logger.Info("[STORE] db_dsn is empty, accounts from %s", cfg.AccountsFile)
		return file.NewAccounts(cfg.AccountsFile), nil
	}

	ctx := context.Background()
	poolMaster, err := db.NewPool(ctx, db.PoolConfig{
		DSN:      cfg.DB,
		MaxConns: cfg.DBMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}
	tx := db.NewPgTxManager(poolMaster)
	accounts := pg.NewAccounts(tx)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := poolMaster.Ping(ctx); err != nil {
				return err
			}
			return accounts.Migrate(ctx)
		},
		OnStop: func(ctx context.Context) error {
			tx.Close()
			return nil
		},
	})
	return accounts, nil
}

func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(NewAccounts),
	)
}
