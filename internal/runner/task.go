package runner

import (
	"context"

	"streak_bot/internal/exchange"
	"streak_bot/internal/models"

	"github.com/google/uuid"
)

// Session торговая сессия аккаунта, реализуется exchange.Session.
type Session interface {
	ID() uuid.UUID
	State() exchange.SessionState
	Run(ctx context.Context) error
	Stop()
	ForceReconnect()
	Send(ctx context.Context, f exchange.Frame) error
}

type SessionFactory interface {
	NewSession(acc models.AccountTradeConfig, events chan<- exchange.SessionEvent) Session
}

// Activator polling-часть торгового сервера: sid + send_user.
type Activator interface {
	exchange.Bootstrapper
	Activate(ctx context.Context, ep exchange.Endpoint, sid string, id exchange.Identity) error
}

// TradeSessions создаёт exchange.Session на аккаунт; перед каждым
// подключением sid активируется токеном аккаунта.
type TradeSessions struct {
	boot     Activator
	dialer   exchange.Dialer
	endpoint exchange.Endpoint
	base     exchange.SessionConfig
}

func NewTradeSessions(boot Activator, dialer exchange.Dialer, endpoint exchange.Endpoint, base exchange.SessionConfig) *TradeSessions {
	return &TradeSessions{boot: boot, dialer: dialer, endpoint: endpoint, base: base}
}

func (f *TradeSessions) NewSession(acc models.AccountTradeConfig, events chan<- exchange.SessionEvent) Session {
	id := Identity(acc)
	cfg := f.base
	cfg.Tag = acc.AccountID
	cfg.Endpoint = f.endpoint
	cfg.Identity = &id
	cfg.Prepare = func(ctx context.Context, sid string) error {
		return f.boot.Activate(ctx, f.endpoint, sid, id)
	}
	return exchange.NewSession(cfg, f.boot, f.dialer, events)
}

func Identity(acc models.AccountTradeConfig) exchange.Identity {
	return exchange.Identity{UID: acc.UserID, AccountID: acc.AccountID, Token: acc.Token}
}

// task одна живая сессия аккаунта. Живёт только в горутине супервизора.
type task struct {
	acc  models.AccountTradeConfig
	sess Session
	done chan struct{}
	// сессия сдалась; ждём Resume, Pause или удаления из ростера
	exhausted bool
}

func (t *task) ready() bool {
	return !t.exhausted && t.sess.State() == exchange.StateReady
}
