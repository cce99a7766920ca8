package wallet

import (
	"context"
	"errors"
	"maps"
	"sync"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	errNotLocked     = errors.New("wallet not part of this mutation")
)

// Wallet is the cached projection of one account. Reads are served from
// memory; every change goes through Cache.Atomic, which persists it first
// and then applies the values the store returned.
type Wallet struct {
	id    int64
	cache *Cache

	// op serializes mutations for the whole read-modify-persist sequence.
	op sync.Mutex

	mu      sync.RWMutex
	balance int64
	items   map[int64]int64
	removed bool
	stale   bool
}

// Snapshot is a point-in-time copy of a wallet.
type Snapshot struct {
	AccountID int64
	Balance   int64
	Items     map[int64]int64
}

func (w *Wallet) ID() int64 { return w.id }

func (w *Wallet) Balance() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.balance
}

func (w *Wallet) Items(itemID int64) int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.items[itemID]
}

func (w *Wallet) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return Snapshot{
		AccountID: w.id,
		Balance:   w.balance,
		Items:     maps.Clone(w.items),
	}
}

func (w *Wallet) Withdraw(ctx context.Context, amount int64) error {
	return w.cache.Atomic(ctx, []*Wallet{w}, func(m *Mutation) error {
		return m.Withdraw(w, amount)
	})
}

func (w *Wallet) Deposit(ctx context.Context, amount int64) error {
	return w.cache.Atomic(ctx, []*Wallet{w}, func(m *Mutation) error {
		return m.Deposit(w, amount)
	})
}

func (w *Wallet) AdjustInventory(ctx context.Context, itemID, delta int64) error {
	return w.cache.Atomic(ctx, []*Wallet{w}, func(m *Mutation) error {
		return m.AdjustInventory(w, itemID, delta)
	})
}

func (w *Wallet) set(balance int64, items map[int64]int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.balance = balance
	w.items = items
	w.stale = false
}

func (w *Wallet) markStale() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stale = true
}

func (w *Wallet) markRemoved() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.removed = true
}

func (w *Wallet) flags() (removed, stale bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.removed, w.stale
}
