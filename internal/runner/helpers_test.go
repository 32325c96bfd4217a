package runner

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"streak_bot/internal/exchange"
	"streak_bot/internal/guard"
	"streak_bot/internal/models"
	"streak_bot/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func account(id string, eligible bool) models.AccountTradeConfig {
	return models.AccountTradeConfig{
		AccountID:      id,
		UserID:         "u" + id,
		Alias:          "alias" + id,
		ChatID:         100,
		Token:          "tok" + id,
		AmountStrategy: []float64{1, 2, 4},
		StartTrade:     models.NewTimeOfDay(0, 0, 0),
		StopTrade:      models.NewTimeOfDay(23, 59, 59),
		Active:         true,
		Running:        eligible,
		StrategyList:   []string{"ext"},
	}
}

type fakeStore struct {
	mu          sync.Mutex
	accounts    map[string]models.AccountTradeConfig
	maintenance bool
	// ошибка записи running, nil = пишем
	runningErr error
}

func newFakeStore(accs ...models.AccountTradeConfig) *fakeStore {
	s := &fakeStore{accounts: make(map[string]models.AccountTradeConfig)}
	for _, a := range accs {
		s.accounts[a.AccountID] = a
	}
	return s
}

func (s *fakeStore) ActiveAccounts(context.Context) ([]models.AccountTradeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AccountTradeConfig, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (s *fakeStore) SetAccountRunning(_ context.Context, id string, running bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningErr != nil {
		return s.runningErr
	}
	a, ok := s.accounts[id]
	if !ok {
		return store.ErrUnknownAccount
	}
	a.Running = running
	s.accounts[id] = a
	return nil
}

func (s *fakeStore) SetStrategyRunning(_ context.Context, id, strategyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return store.ErrUnknownAccount
	}
	a.StrategyRunning = strategyID
	s.accounts[id] = a
	return nil
}

func (s *fakeStore) Maintenance(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maintenance, nil
}

func (s *fakeStore) failRunning(err error) {
	s.mu.Lock()
	s.runningErr = err
	s.mu.Unlock()
}

func (s *fakeStore) put(a models.AccountTradeConfig) {
	s.mu.Lock()
	s.accounts[a.AccountID] = a
	s.mu.Unlock()
}

func (s *fakeStore) remove(id string) {
	s.mu.Lock()
	delete(s.accounts, id)
	s.mu.Unlock()
}

func (s *fakeStore) get(id string) models.AccountTradeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

// fakeSession сразу Ready, пишет отправленные кадры.
type fakeSession struct {
	id     uuid.UUID
	tag    string
	events chan<- exchange.SessionEvent

	state      atomic.Int32
	stops      atomic.Int32
	reconnects atomic.Int32
	exited     atomic.Bool
	stopCh     chan struct{}
	once       sync.Once

	mu   sync.Mutex
	sent []exchange.Frame
}

func (f *fakeSession) ID() uuid.UUID                { return f.id }
func (f *fakeSession) State() exchange.SessionState { return exchange.SessionState(f.state.Load()) }
func (f *fakeSession) ForceReconnect()              { f.reconnects.Add(1) }

func (f *fakeSession) Run(ctx context.Context) error {
	defer f.exited.Store(true)
	f.state.Store(int32(exchange.StateReady))
	f.emit(ctx, exchange.SessionEvent{Kind: exchange.SessionReady})
	select {
	case <-ctx.Done():
	case <-f.stopCh:
	}
	return nil
}

func (f *fakeSession) Stop() {
	f.stops.Add(1)
	f.state.Store(int32(exchange.StateClosed))
	f.once.Do(func() { close(f.stopCh) })
}

func (f *fakeSession) Send(_ context.Context, fr exchange.Frame) error {
	if f.State() != exchange.StateReady {
		return exchange.ErrNotReady
	}
	f.mu.Lock()
	f.sent = append(f.sent, fr)
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) emit(ctx context.Context, ev exchange.SessionEvent) {
	ev.SessionID = f.id
	ev.Tag = f.tag
	select {
	case f.events <- ev:
	case <-ctx.Done():
	case <-f.stopCh:
	}
}

// message событие от биржи как будто из сокета
func (f *fakeSession) message(t *testing.T, name string, payload any) {
	fr, err := exchange.NewEvent(name, payload)
	require.NoError(t, err)
	f.emit(context.Background(), exchange.SessionEvent{Kind: exchange.SessionMessage, Frame: fr})
}

func (f *fakeSession) frames(name string) []exchange.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []exchange.Frame
	for _, fr := range f.sent {
		if fr.Name == name {
			out = append(out, fr)
		}
	}
	return out
}

type fakeFactory struct {
	mu       sync.Mutex
	sessions map[string][]*fakeSession
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{sessions: make(map[string][]*fakeSession)}
}

func (f *fakeFactory) NewSession(acc models.AccountTradeConfig, events chan<- exchange.SessionEvent) Session {
	s := &fakeSession{id: uuid.New(), tag: acc.AccountID, events: events, stopCh: make(chan struct{})}
	f.mu.Lock()
	f.sessions[acc.AccountID] = append(f.sessions[acc.AccountID], s)
	f.mu.Unlock()
	return s
}

func (f *fakeFactory) created(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions[id])
}

func (f *fakeFactory) last(id string) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.sessions[id]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

type fakeDecider struct {
	mu      sync.Mutex
	byID    map[string]models.Instruction
	cleared []string
}

func (d *fakeDecider) Decide(_ context.Context, _ models.PriceSignal, acc models.AccountTradeConfig) models.Instruction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byID[acc.AccountID]
}

func (d *fakeDecider) Clear(_ context.Context, strategyID, accountID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleared = append(d.cleared, strategyID+"/"+accountID)
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	account []string
	system  []string
}

func (n *fakeNotifier) Account(_ context.Context, _ int64, msg string) {
	n.mu.Lock()
	n.account = append(n.account, msg)
	n.mu.Unlock()
}

func (n *fakeNotifier) System(_ context.Context, msg string) {
	n.mu.Lock()
	n.system = append(n.system, msg)
	n.mu.Unlock()
}

func (n *fakeNotifier) hasAccount(msg string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Contains(n.account, msg)
}

func (n *fakeNotifier) hasSystem(msg string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Contains(n.system, msg)
}

type fakeHealth struct{ n atomic.Int32 }

func (h *fakeHealth) SetTasks(n int) { h.n.Store(int32(n)) }

type harness struct {
	sup      *Supervisor
	store    *fakeStore
	factory  *fakeFactory
	decider  *fakeDecider
	notifier *fakeNotifier
	health   *fakeHealth
	market   chan models.MarketEvent
	cancel   context.CancelFunc
	done     chan struct{}
}

func startHarness(t *testing.T, accs ...models.AccountTradeConfig) *harness {
	t.Helper()
	h := &harness{
		store:    newFakeStore(accs...),
		factory:  newFakeFactory(),
		decider:  &fakeDecider{byID: make(map[string]models.Instruction)},
		notifier: &fakeNotifier{},
		health:   &fakeHealth{},
		market:   make(chan models.MarketEvent),
		done:     make(chan struct{}),
	}
	h.sup = NewSupervisor(Config{
		WinMessages:  []string{"nice"},
		LoseMessages: []string{"next time"},
	}, h.store, h.decider, guard.NewMemory(0), h.notifier, h.health, h.factory, h.market)
	// без буферов: отправка в канал = событие принято циклом супервизора
	h.sup.events = make(chan exchange.SessionEvent)
	h.sup.now = func() time.Time { return time.Date(2019, 9, 10, 15, 25, 10, 0, time.UTC) }
	h.sup.pick = func(int) int { return 0 }

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		_ = h.sup.Run(ctx)
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

// waitReady ждём, пока супервизор увидит сессию аккаунта в Ready.
func (h *harness) waitReady(t *testing.T, id string) *fakeSession {
	t.Helper()
	require.Eventually(t, func() bool {
		s := h.factory.last(id)
		return s != nil && s.State() == exchange.StateReady
	}, time.Second, 5*time.Millisecond)
	// Status проходит через цикл супервизора, значит Ready уже обработан
	_, err := h.sup.Status(context.Background())
	require.NoError(t, err)
	return h.factory.last(id)
}
