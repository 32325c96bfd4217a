package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"streak_bot/internal/exchange"
	"streak_bot/internal/modules/config"
	"streak_bot/internal/store"
	"streak_bot/internal/store/file"
	"streak_bot/internal/store/pg"
	"streak_bot/pkg/db"
	"streak_bot/pkg/logger"
)

// signin получает токен аккаунта у auth-сервиса и сохраняет в store.
// С -import переносит yaml-ростер в Postgres.
func main() {
	accountID := flag.String("account", "", "account id")
	password := flag.String("password", os.Getenv("ACCOUNT_PASSWORD"), "account password (or ACCOUNT_PASSWORD)")
	dry := flag.Bool("dry", false, "print the token, do not save")
	importFile := flag.String("import", "", "copy accounts from this yaml roster into db_dsn")
	flag.Parse()

	if *importFile == "" && (*accountID == "" || *password == "") {
		flag.Usage()
		os.Exit(2)
	}
	run := func(cfg *config.Config) error { return signin(cfg, *accountID, *password, *dry) }
	if *importFile != "" {
		run = func(cfg *config.Config) error { return importRoster(cfg, *importFile) }
	}
	if err := withConfig(run); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withConfig(fn func(cfg *config.Config) error) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		return err
	}
	defer logger.Sync()
	return fn(cfg)
}

func signin(cfg *config.Config, accountID, password string, dry bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	creds, err := exchange.NewAuthClient(cfg.Auth.URL, nil).RetrieveToken(ctx, accountID, password)
	if err != nil {
		return err
	}
	if dry {
		fmt.Printf("uid=%s account_id=%s token=%s\n", creds.UID, creds.AccountID, creds.Token)
		return nil
	}

	accounts, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := accounts.UpdateToken(ctx, accountID, creds.Token); err != nil {
		return err
	}
	logger.Info("[SIGNIN] token updated for %s", accountID)
	return nil
}

// importRoster заводит или перезаписывает в Postgres каждый аккаунт из файла.
// Невалидные аккаунты пропускаются, остальные переносятся.
func importRoster(cfg *config.Config, path string) error {
	if cfg.DB == "" {
		return fmt.Errorf("import: db_dsn is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	accs, err := file.NewAccounts(path).All(ctx)
	if err != nil {
		return err
	}
	tx, err := openPg(ctx, cfg)
	if err != nil {
		return err
	}
	defer tx.Close()

	target := pg.NewAccounts(tx)
	if err := target.Migrate(ctx); err != nil {
		return err
	}
	var done, skipped int
	for _, acc := range accs {
		if err := target.Upsert(ctx, acc); err != nil {
			logger.Warn("[SIGNIN] skip %s: %v", acc.AccountID, err)
			skipped++
			continue
		}
		done++
	}
	logger.Info("[SIGNIN] imported %d accounts from %s, skipped %d", done, path, skipped)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Accounts, func(), error) {
	if cfg.DB == "" {
		return file.NewAccounts(cfg.AccountsFile), func() {}, nil
	}
	tx, err := openPg(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return pg.NewAccounts(tx), tx.Close, nil
}

func openPg(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return db.NewPgTxManager(pool), nil
}
