package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"streak_bot/internal/exchange"
	"streak_bot/internal/models"
	"streak_bot/internal/store"
	"streak_bot/pkg/logger"
)

var ErrStopped = errors.New("supervisor is not running")

type Store interface {
	ActiveAccounts(ctx context.Context) ([]models.AccountTradeConfig, error)
	SetAccountRunning(ctx context.Context, accountID string, running bool) error
	SetStrategyRunning(ctx context.Context, accountID, strategyID string) error
	Maintenance(ctx context.Context) (bool, error)
}

type Decider interface {
	Decide(ctx context.Context, sig models.PriceSignal, acc models.AccountTradeConfig) models.Instruction
	Clear(ctx context.Context, strategyID, accountID string) error
}

type Guard interface {
	Acquire(ctx context.Context, accountID, period string) (bool, error)
}

type Notifier interface {
	Account(ctx context.Context, chatID int64, msg string)
	System(ctx context.Context, msg string)
}

type Health interface {
	SetTasks(n int)
}

type Config struct {
	PairID string
	Wallet int
	// после этой секунды минуты раунд не запускается
	OrderCutoffSecond int
	MaxParallel       int
	SendTimeout       time.Duration

	WinMessages  []string
	LoseMessages []string
	Location     *time.Location
}

type TaskStatus struct {
	AccountID string
	Alias     string
	Strategy  string
	State     string
	Exhausted bool
}

type command struct {
	fn    func(ctx context.Context) error
	reply chan error
}

// Supervisor держит ровно одну торговую сессию на каждый подходящий аккаунт.
// Карта задач принадлежит горутине Run; снаружи только через команды.
type Supervisor struct {
	cfg      Config
	store    Store
	decider  Decider
	guard    Guard
	notifier Notifier
	health   Health
	sessions SessionFactory

	market <-chan models.MarketEvent
	events chan exchange.SessionEvent
	cmds   chan command

	tasks map[string]*task
	// сняты рынком; сверка их не поднимает до /resume или пока store
	// не покажет running=false
	halted  map[string]struct{}
	wg      sync.WaitGroup
	stopped chan struct{}

	now  func() time.Time
	pick func(n int) int
}

func NewSupervisor(
	cfg Config,
	st Store,
	decider Decider,
	g Guard,
	n Notifier,
	h Health,
	sessions SessionFactory,
	market <-chan models.MarketEvent,
) *Supervisor {
	if cfg.OrderCutoffSecond <= 0 {
		cfg.OrderCutoffSecond = 30
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 8
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.PairID == "" {
		cfg.PairID = exchange.DefaultPairID
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Supervisor{
		cfg:      cfg,
		store:    st,
		decider:  decider,
		guard:    g,
		notifier: n,
		health:   h,
		sessions: sessions,
		market:   market,
		events:   make(chan exchange.SessionEvent, 256),
		cmds:     make(chan command),
		tasks:    make(map[string]*task),
		halted:   make(map[string]struct{}),
		stopped:  make(chan struct{}),
		now:      time.Now,
		pick:     rand.Intn,
	}
}

// Run цикл супервизора до отмены ctx. На выходе все сессии остановлены.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.stopped)

	if err := s.reconcile(ctx); err != nil {
		logger.Error("[RUNNER] initial reconcile: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev, ok := <-s.market:
			if !ok {
				s.market = nil
				continue
			}
			s.onMarket(ctx, ev)
		case ev := <-s.events:
			s.onSession(ctx, ev)
		case c := <-s.cmds:
			c.reply <- c.fn(ctx)
		}
	}
}

// do выполняет fn в горутине супервизора и ждёт результат.
func (s *Supervisor) do(ctx context.Context, fn func(ctx context.Context) error) error {
	c := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.cmds <- c:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) Reconcile(ctx context.Context) error {
	return s.do(ctx, s.reconcile)
}

// Resume снимает надгробие и заново поднимает сессию аккаунта.
func (s *Supervisor) Resume(ctx context.Context, accountID string) error {
	return s.do(ctx, func(ctx context.Context) error {
		if err := s.store.SetAccountRunning(ctx, accountID, true); err != nil {
			return err
		}
		delete(s.halted, accountID)
		acc, err := s.lookup(ctx, accountID)
		if err != nil {
			return err
		}
		if t, ok := s.tasks[accountID]; ok {
			if !t.exhausted {
				t.acc = acc
				return nil
			}
			s.stopTask(accountID)
		}
		if !acc.Eligible() {
			return fmt.Errorf("account %s is not active", accountID)
		}
		s.startTask(ctx, acc)
		return nil
	})
}

func (s *Supervisor) Pause(ctx context.Context, accountID string) error {
	return s.do(ctx, func(ctx context.Context) error {
		if err := s.store.SetAccountRunning(ctx, accountID, false); err != nil {
			return err
		}
		s.stopTask(accountID)
		return nil
	})
}

// SetStrategy переключает стратегию аккаунта и сбрасывает кэш прежней.
func (s *Supervisor) SetStrategy(ctx context.Context, accountID, strategyID string) error {
	return s.do(ctx, func(ctx context.Context) error {
		acc, err := s.lookup(ctx, accountID)
		if err != nil {
			return err
		}
		if !acc.HasStrategy(strategyID) {
			return fmt.Errorf("%w: %s", models.ErrUnknownStrategy, strategyID)
		}
		prev := acc.Strategy()
		if err := s.store.SetStrategyRunning(ctx, accountID, strategyID); err != nil {
			return err
		}
		if t, ok := s.tasks[accountID]; ok {
			t.acc.StrategyRunning = strategyID
		}
		if prev != strategyID {
			if err := s.decider.Clear(ctx, prev, accountID); err != nil {
				logger.Warn("[RUNNER] %s clear %s: %v", accountID, prev, err)
			}
		}
		return nil
	})
}

func (s *Supervisor) Status(ctx context.Context) ([]TaskStatus, error) {
	var out []TaskStatus
	err := s.do(ctx, func(context.Context) error {
		for id, t := range s.tasks {
			state := t.sess.State().String()
			if t.exhausted {
				state = "exhausted"
			}
			out = append(out, TaskStatus{
				AccountID: id,
				Alias:     t.acc.Alias,
				Strategy:  t.acc.Strategy(),
				State:     state,
				Exhausted: t.exhausted,
			})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, err
}

// Report статус задач текстом для чата.
func (s *Supervisor) Report(ctx context.Context) (string, error) {
	st, err := s.Status(ctx)
	if err != nil {
		return "", err
	}
	if len(st) == 0 {
		return "No running accounts", nil
	}
	var b strings.Builder
	for _, t := range st {
		name := t.AccountID
		if t.Alias != "" {
			name = fmt.Sprintf("%s (%s)", t.AccountID, t.Alias)
		}
		fmt.Fprintf(&b, "%s: %s, %s\n", name, t.State, t.Strategy)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Supervisor) lookup(ctx context.Context, accountID string) (models.AccountTradeConfig, error) {
	roster, err := s.store.ActiveAccounts(ctx)
	if err != nil {
		return models.AccountTradeConfig{}, err
	}
	for _, acc := range roster {
		if acc.AccountID == accountID {
			return acc, nil
		}
	}
	return models.AccountTradeConfig{}, fmt.Errorf("%w: %s", store.ErrUnknownAccount, accountID)
}

func (s *Supervisor) reconcile(ctx context.Context) error {
	roster, err := s.store.ActiveAccounts(ctx)
	if err != nil {
		return fmt.Errorf("runner.reconcile: %w", err)
	}

	roster = s.withoutHalted(roster)

	live := make(map[string]bool, len(s.tasks))
	for id, t := range s.tasks {
		live[id] = t.exhausted
	}
	p := Reconcile(live, roster)
	if !p.Empty() {
		logger.Info("[RUNNER] reconcile: start %d, stop %d, live %d", len(p.Start), len(p.Stop), len(p.Refresh))
	}

	for _, id := range p.Stop {
		s.stopTask(id)
	}
	for _, acc := range p.Refresh {
		s.tasks[acc.AccountID].acc = acc
	}
	for _, acc := range p.Start {
		s.startTask(ctx, acc)
	}
	return nil
}

func (s *Supervisor) withoutHalted(roster []models.AccountTradeConfig) []models.AccountTradeConfig {
	if len(s.halted) == 0 {
		return roster
	}
	out := make([]models.AccountTradeConfig, 0, len(roster))
	held := make(map[string]bool, len(s.halted))
	for _, acc := range roster {
		if _, ok := s.halted[acc.AccountID]; ok && acc.Eligible() {
			held[acc.AccountID] = true
			continue
		}
		out = append(out, acc)
	}
	for id := range s.halted {
		if !held[id] {
			delete(s.halted, id)
		}
	}
	return out
}

func (s *Supervisor) startTask(ctx context.Context, acc models.AccountTradeConfig) {
	sess := s.sessions.NewSession(acc, s.events)
	t := &task{acc: acc, sess: sess, done: make(chan struct{})}
	s.tasks[acc.AccountID] = t

	go func() {
		defer close(t.done)
		if err := sess.Run(ctx); err != nil {
			logger.Warn("[RUNNER] %s session %s: %v", acc.AccountID, sess.ID(), err)
		}
	}()
	logger.Info("[RUNNER] %s started, session %s", acc.AccountID, sess.ID())
	s.setTasks()
}

// stopTask синхронно гасит сессию и убирает задачу из карты.
func (s *Supervisor) stopTask(accountID string) bool {
	t, ok := s.tasks[accountID]
	if !ok {
		return false
	}
	delete(s.tasks, accountID)
	t.sess.Stop()
	<-t.done
	logger.Info("[RUNNER] %s stopped", accountID)
	s.setTasks()
	return true
}

func (s *Supervisor) shutdown() {
	for id := range s.tasks {
		s.stopTask(id)
	}
	s.wg.Wait()
}

func (s *Supervisor) setTasks() {
	if s.health != nil {
		s.health.SetTasks(len(s.tasks))
	}
}

// current задача, если событие пришло от её живой сессии.
func (s *Supervisor) current(ev exchange.SessionEvent) (*task, bool) {
	t, ok := s.tasks[ev.Tag]
	if !ok || t.sess.ID() != ev.SessionID {
		return nil, false
	}
	return t, true
}

func (s *Supervisor) onSession(ctx context.Context, ev exchange.SessionEvent) {
	t, ok := s.current(ev)
	if !ok {
		logger.Debug("[RUNNER] drop %s from stale session %s (%s)", ev.Kind, ev.SessionID, ev.Tag)
		return
	}

	switch ev.Kind {
	case exchange.SessionReady:
		logger.Info("[RUNNER] %s ready", ev.Tag)
	case exchange.SessionReconnecting:
		logger.Warn("[RUNNER] %s reconnecting (%d): %v", ev.Tag, ev.Attempt, ev.Err)
	case exchange.SessionExhausted:
		t.exhausted = true
		msg := fmt.Sprintf("%s connection lost: %v. Use /resume %s", ev.Tag, ev.Err, ev.Tag)
		logger.Error("[RUNNER] %s", msg)
		s.async(ctx, func(ctx context.Context) { s.notifier.System(ctx, msg) })
	case exchange.SessionMessage:
		s.onMessage(ctx, t, ev.Frame)
	}
}

func (s *Supervisor) onMarket(ctx context.Context, ev models.MarketEvent) {
	switch ev.Kind {
	case models.PeriodOpened:
		s.keepAlive(ctx)
	case models.PriceSignalled:
		s.trade(ctx, ev.Signal)
	case models.PeriodClosed:
		if err := s.reconcile(ctx); err != nil {
			logger.Error("[RUNNER] %v", err)
		}
	}
}

// async запускает fn вне горутины супервизора (сеть, Telegram).
func (s *Supervisor) async(ctx context.Context, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

func (s *Supervisor) funny(win bool) string {
	list := s.cfg.LoseMessages
	if win {
		list = s.cfg.WinMessages
	}
	if len(list) == 0 {
		return ""
	}
	return list[s.pick(len(list))]
}
