package guard

import (
	"context"
	"sync"
	"time"
)

const DefaultTTL = 2 * time.Minute

// Guard не даёт отправить больше одной ставки на аккаунт за период.
type Guard interface {
	// Acquire true, если ставка на (accountID, period) ещё не делалась.
	Acquire(ctx context.Context, accountID, period string) (bool, error)
}

// Memory guard в памяти процесса; записи старше ttl выкидываются.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (m *Memory) Acquire(_ context.Context, accountID, period string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, at := range m.seen {
		if now.Sub(at) > m.ttl {
			delete(m.seen, k)
		}
	}

	key := accountID + "|" + period
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = now
	return true, nil
}
