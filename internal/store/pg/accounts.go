package pg

import (
	"context"
	"errors"
	"fmt"

	"streak_bot/internal/models"
	"streak_bot/internal/store"
	"streak_bot/pkg/db"
	"streak_bot/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS trade_accounts (
	account_id       TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL DEFAULT '',
	alias            TEXT NOT NULL DEFAULT '',
	chat_id          BIGINT NOT NULL DEFAULT 0,
	token            TEXT NOT NULL DEFAULT '',
	settings         JSONB NOT NULL DEFAULT '{}',
	active           BOOLEAN NOT NULL DEFAULT FALSE,
	running          BOOLEAN NOT NULL DEFAULT FALSE,
	strategy_running TEXT NOT NULL DEFAULT '',
	strategy_list    JSONB NOT NULL DEFAULT '[]',
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS system_flags (
	name  TEXT PRIMARY KEY,
	value BOOLEAN NOT NULL DEFAULT FALSE
);`

const (
	selectActive = `SELECT account_id, user_id, alias, chat_id, token, settings, active, running, strategy_running, strategy_list
FROM trade_accounts WHERE active ORDER BY account_id`
	updateRunning  = `UPDATE trade_accounts SET running = $2, updated_at = now() WHERE account_id = $1`
	updateStrategy = `UPDATE trade_accounts SET strategy_running = $2, updated_at = now() WHERE account_id = $1`
	updateToken    = `UPDATE trade_accounts SET token = $2, updated_at = now() WHERE account_id = $1`
	upsertAccount  = `INSERT INTO trade_accounts (account_id, user_id, alias, chat_id, token, settings, active, running, strategy_running, strategy_list)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (account_id) DO UPDATE SET user_id = $2, alias = $3, chat_id = $4, token = $5, settings = $6,
	active = $7, running = $8, strategy_running = $9, strategy_list = $10, updated_at = now()`
	selectMaintenance = `SELECT value FROM system_flags WHERE name = 'maintenance'`
)

// settings jsonb-часть аккаунта: параметры стратегии.
type settings struct {
	AmountStrategy        []float64        `json:"amount_strategy"`
	SplitCandleThStrategy int              `json:"split_candle_th_strategy"`
	SplitOffsetStrategy   int              `json:"split_offset_strategy"`
	StartTrade            models.TimeOfDay `json:"start_trade"`
	StopTrade             models.TimeOfDay `json:"stop_trade"`
}

// Accounts implement store.Accounts
type Accounts struct {
	db db.TxManager
}

var _ store.Accounts = (*Accounts)(nil)

func NewAccounts(tx db.TxManager) *Accounts {
	return &Accounts{db: tx}
}

func (a *Accounts) Migrate(ctx context.Context) error {
	if _, err := a.db.Conn().Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg.Migrate: %w", err)
	}
	return nil
}

func (a *Accounts) ActiveAccounts(ctx context.Context) (out []models.AccountTradeConfig, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.ActiveAccounts: %w", err)
		}
	}()

	err = a.db.RunReadOnly(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctxTx, selectActive)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				acc           models.AccountTradeConfig
				rawSettings   []byte
				rawStrategies []byte
			)
			if err := rows.Scan(&acc.AccountID, &acc.UserID, &acc.Alias, &acc.ChatID, &acc.Token,
				&rawSettings, &acc.Active, &acc.Running, &acc.StrategyRunning, &rawStrategies); err != nil {
				return err
			}
			if err := decodeAccount(&acc, rawSettings, rawStrategies); err != nil {
				logger.Warn("[STORE] skip account %s: %v", acc.AccountID, err)
				continue
			}
			out = append(out, acc)
		}
		return rows.Err()
	})
	return out, err
}

func (a *Accounts) SetAccountRunning(ctx context.Context, accountID string, running bool) error {
	return a.update(ctx, "pg.SetAccountRunning", updateRunning, accountID, running)
}

func (a *Accounts) SetStrategyRunning(ctx context.Context, accountID, strategyID string) error {
	return a.update(ctx, "pg.SetStrategyRunning", updateStrategy, accountID, strategyID)
}

func (a *Accounts) UpdateToken(ctx context.Context, accountID, token string) error {
	return a.update(ctx, "pg.UpdateToken", updateToken, accountID, token)
}

// Upsert заводит или перезаписывает аккаунт целиком.
func (a *Accounts) Upsert(ctx context.Context, acc models.AccountTradeConfig) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Upsert: %w", err)
		}
	}()
	if err = acc.Validate(); err != nil {
		return err
	}
	rawSettings, rawStrategies, err := encodeAccount(acc)
	if err != nil {
		return err
	}
	return a.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, upsertAccount, acc.AccountID, acc.UserID, acc.Alias, acc.ChatID, acc.Token,
			rawSettings, acc.Active, acc.Running, acc.StrategyRunning, rawStrategies)
		return err
	})
}

func (a *Accounts) Maintenance(ctx context.Context) (bool, error) {
	var v bool
	err := a.db.Conn().QueryRow(ctx, selectMaintenance).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pg.Maintenance: %w", err)
	}
	return v, nil
}

func (a *Accounts) update(ctx context.Context, op, query string, args ...any) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("%s: %w", op, err)
		}
	}()
	return a.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctxTx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrUnknownAccount
		}
		return nil
	})
}

func encodeAccount(acc models.AccountTradeConfig) (rawSettings, rawStrategies []byte, err error) {
	rawSettings, err = sonic.Marshal(settings{
		AmountStrategy:        acc.AmountStrategy,
		SplitCandleThStrategy: acc.SplitCandleThStrategy,
		SplitOffsetStrategy:   acc.SplitOffsetStrategy,
		StartTrade:            acc.StartTrade,
		StopTrade:             acc.StopTrade,
	})
	if err != nil {
		return nil, nil, err
	}
	list := acc.StrategyList
	if list == nil {
		list = []string{}
	}
	rawStrategies, err = sonic.Marshal(list)
	return rawSettings, rawStrategies, err
}

func decodeAccount(acc *models.AccountTradeConfig, rawSettings, rawStrategies []byte) error {
	var s settings
	if len(rawSettings) > 0 {
		if err := sonic.Unmarshal(rawSettings, &s); err != nil {
			return fmt.Errorf("settings: %w", err)
		}
	}
	acc.AmountStrategy = s.AmountStrategy
	acc.SplitCandleThStrategy = s.SplitCandleThStrategy
	acc.SplitOffsetStrategy = s.SplitOffsetStrategy
	acc.StartTrade = s.StartTrade
	acc.StopTrade = s.StopTrade

	if len(rawStrategies) > 0 {
		if err := sonic.Unmarshal(rawStrategies, &acc.StrategyList); err != nil {
			return fmt.Errorf("strategy_list: %w", err)
		}
	}
	return acc.Validate()
}
