package store

import (
	"context"
	"errors"

	"streak_bot/internal/models"
)

var ErrUnknownAccount = errors.New("unknown account")

// Accounts хранилище торговых аккаунтов: Postgres или yaml-файл.
type Accounts interface {
	// ActiveAccounts снимок аккаунтов с флагом active на момент вызова.
	ActiveAccounts(ctx context.Context) ([]models.AccountTradeConfig, error)
	SetAccountRunning(ctx context.Context, accountID string, running bool) error
	SetStrategyRunning(ctx context.Context, accountID, strategyID string) error
	UpdateToken(ctx context.Context, accountID, token string) error
	// Maintenance флаг тех. работ: торговые раунды пропускаются.
	Maintenance(ctx context.Context) (bool, error)
}
