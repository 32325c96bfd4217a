package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"streak_bot/internal/models"
	"streak_bot/internal/store"
	"streak_bot/pkg/logger"

	"gopkg.in/yaml.v2"
)

// roster формат файла аккаунтов.
type roster struct {
	Maintenance bool                        `yaml:"maintenance"`
	Accounts    []models.AccountTradeConfig `yaml:"accounts"`
}

// Accounts store на yaml-файле. Файл перечитывается на каждый запрос,
// правки руками подхватываются на следующей сверке.
type Accounts struct {
	path string
	mu   sync.Mutex
}

var _ store.Accounts = (*Accounts)(nil)

func NewAccounts(path string) *Accounts {
	return &Accounts{path: path}
}

func (a *Accounts) ActiveAccounts(ctx context.Context) ([]models.AccountTradeConfig, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, err := a.loadLocked()
	if err != nil {
		return nil, fmt.Errorf("file.ActiveAccounts: %w", err)
	}
	out := make([]models.AccountTradeConfig, 0, len(r.Accounts))
	for _, acc := range r.Accounts {
		if !acc.Active {
			continue
		}
		if err := acc.Validate(); err != nil {
			logger.Warn("[STORE] skip account %s: %v", acc.AccountID, err)
			continue
		}
		out = append(out, acc.Clone())
	}
	return out, nil
}

// All весь ростер как есть, без фильтров: для переноса в Postgres.
func (a *Accounts) All(ctx context.Context) ([]models.AccountTradeConfig, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, err := a.loadLocked()
	if err != nil {
		return nil, fmt.Errorf("file.All: %w", err)
	}
	out := make([]models.AccountTradeConfig, 0, len(r.Accounts))
	for _, acc := range r.Accounts {
		out = append(out, acc.Clone())
	}
	return out, nil
}

func (a *Accounts) SetAccountRunning(ctx context.Context, accountID string, running bool) error {
	return a.update("file.SetAccountRunning", accountID, func(acc *models.AccountTradeConfig) {
		acc.Running = running
	})
}

func (a *Accounts) SetStrategyRunning(ctx context.Context, accountID, strategyID string) error {
	return a.update("file.SetStrategyRunning", accountID, func(acc *models.AccountTradeConfig) {
		acc.StrategyRunning = strategyID
	})
}

func (a *Accounts) UpdateToken(ctx context.Context, accountID, token string) error {
	return a.update("file.UpdateToken", accountID, func(acc *models.AccountTradeConfig) {
		acc.Token = token
	})
}

func (a *Accounts) Maintenance(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, err := a.loadLocked()
	if err != nil {
		return false, fmt.Errorf("file.Maintenance: %w", err)
	}
	return r.Maintenance, nil
}

func (a *Accounts) update(op, accountID string, fn func(acc *models.AccountTradeConfig)) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("%s: %w", op, err)
		}
	}()
	a.mu.Lock()
	defer a.mu.Unlock()

	r, err := a.loadLocked()
	if err != nil {
		return err
	}
	for i := range r.Accounts {
		if r.Accounts[i].AccountID == accountID {
			fn(&r.Accounts[i])
			return a.saveLocked(r)
		}
	}
	return store.ErrUnknownAccount
}

func (a *Accounts) loadLocked() (roster, error) {
	var r roster
	b, err := os.ReadFile(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return r, fmt.Errorf("read %s: %w", a.path, err)
	}
	if err := yaml.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("decode %s: %w", a.path, err)
	}
	return r, nil
}

func (a *Accounts) saveLocked(r roster) error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(&r)
	if err != nil {
		return err
	}
	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, a.path) // атомарно
}
