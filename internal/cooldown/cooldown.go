// Package cooldown rate-limits per-account reward commands.
package cooldown

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type Limiter interface {
	// Acquire starts the cooldown for key unless one is running. It returns
	// zero when the cooldown was started and the time left otherwise.
	Acquire(ctx context.Context, key string, ttl time.Duration) (time.Duration, error)
	// Release ends a cooldown early, for rewards that were not paid.
	Release(ctx context.Context, key string) error
}

var _ Limiter = (*Memory)(nil)

// pruneEvery is how many acquires pass between sweeps of expired keys.
const pruneEvery = 256

// Memory keeps cooldowns in process. It is used when no Redis address is
// configured.
type Memory struct {
	now func() time.Time

	mu       sync.Mutex
	expires  map[string]time.Time
	acquires int
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}

	return &Memory{now: now, expires: make(map[string]time.Time)}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if exp, ok := m.expires[key]; ok && now.Before(exp) {
		return exp.Sub(now), nil
	}

	m.expires[key] = now.Add(ttl)

	m.acquires++
	if m.acquires%pruneEvery == 0 {
		m.prune(now)
	}

	return 0, nil
}

// prune drops expired keys so the map stays bounded by recently active
// accounts. Expired entries left between sweeps are ignored by Acquire.
func (m *Memory) prune(now time.Time) {
	for k, exp := range m.expires {
		if !now.Before(exp) {
			delete(m.expires, k)
		}
	}
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.expires, key)

	return nil
}

// Key names the cooldown of one command for one account.
func Key(command string, accountID int64) string {
	return "cooldown:" + command + ":" + strconv.FormatInt(accountID, 10)
}
