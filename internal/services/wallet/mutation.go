package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"

	"github.com/fastprodman/coinledger/internal/repos/accounts"
	"github.com/fastprodman/coinledger/internal/repos/inventory"
)

// Mutation is the transaction handle passed to Cache.Atomic callbacks. It
// records the values returned by the store so they can be applied to the
// wallets after commit.
type Mutation struct {
	ctx    context.Context
	tx     *sql.Tx
	locked map[int64]*Wallet

	balances map[int64]int64
	items    map[int64]map[int64]int64
	gone     []*Wallet
}

func newMutation(ctx context.Context, ws []*Wallet) *Mutation {
	m := &Mutation{
		ctx:      ctx,
		locked:   make(map[int64]*Wallet, len(ws)),
		balances: make(map[int64]int64, len(ws)),
		items:    make(map[int64]map[int64]int64),
	}

	for _, w := range ws {
		m.locked[w.id] = w
	}

	return m
}

// Tx is the open store transaction, for repository calls that must commit
// together with the wallet changes.
func (m *Mutation) Tx() *sql.Tx { return m.tx }

func (m *Mutation) Context() context.Context { return m.ctx }

// Balance is w's balance as of this point in the transaction.
func (m *Mutation) Balance(w *Wallet) int64 {
	if b, ok := m.balances[w.id]; ok {
		return b
	}

	return w.Balance()
}

// Items is w's count of itemID as of this point in the transaction.
func (m *Mutation) Items(w *Wallet, itemID int64) int64 {
	if held, ok := m.items[w.id]; ok {
		if n, ok := held[itemID]; ok {
			return n
		}
	}

	return w.Items(itemID)
}

func (m *Mutation) Withdraw(w *Wallet, amount int64) error {
	err := m.check(w, amount)
	if err != nil {
		return err
	}

	if m.Balance(w) < amount {
		return fmt.Errorf("withdraw %d from %d: %w", amount, w.id, accounts.ErrInsufficientFunds)
	}

	bal, err := w.cache.accounts.DecreaseBalance(m.ctx, m.tx, w.id, amount)
	if err != nil {
		return m.fail(w, fmt.Errorf("withdraw %d from %d: %w", amount, w.id, err))
	}

	m.balances[w.id] = bal

	return nil
}

func (m *Mutation) Deposit(w *Wallet, amount int64) error {
	err := m.check(w, amount)
	if err != nil {
		return err
	}

	bal, err := w.cache.accounts.IncreaseBalance(m.ctx, m.tx, w.id, amount)
	if err != nil {
		return m.fail(w, fmt.Errorf("deposit %d to %d: %w", amount, w.id, err))
	}

	m.balances[w.id] = bal

	return nil
}

func (m *Mutation) AdjustInventory(w *Wallet, itemID, delta int64) error {
	if m.locked[w.id] != w {
		return errNotLocked
	}

	if delta < 0 && m.Items(w, itemID) < -delta {
		return fmt.Errorf("remove %d of item %d from %d: %w", -delta, itemID, w.id, inventory.ErrInsufficientItems)
	}

	n, err := w.cache.inventory.Adjust(m.ctx, m.tx, w.id, itemID, delta)
	if err != nil {
		return m.fail(w, fmt.Errorf("adjust item %d for %d: %w", itemID, w.id, err))
	}

	held, ok := m.items[w.id]
	if !ok {
		held = make(map[int64]int64)
		m.items[w.id] = held
	}

	held[itemID] = n

	return nil
}

func (m *Mutation) check(w *Wallet, amount int64) error {
	if m.locked[w.id] != w {
		return errNotLocked
	}

	if amount <= 0 {
		return ErrInvalidAmount
	}

	return nil
}

func (m *Mutation) fail(w *Wallet, err error) error {
	if errors.Is(err, accounts.ErrAccountNotFound) {
		m.gone = append(m.gone, w)
	}

	return err
}

func (m *Mutation) apply() {
	for id, w := range m.locked {
		bal, hasBal := m.balances[id]
		changed, hasItems := m.items[id]

		if !hasBal && !hasItems {
			continue
		}

		w.mu.Lock()

		if hasBal {
			w.balance = bal
		}

		if hasItems {
			held := maps.Clone(w.items)
			if held == nil {
				held = make(map[int64]int64, len(changed))
			}

			for item, n := range changed {
				if n == 0 {
					delete(held, item)
				} else {
					held[item] = n
				}
			}

			w.items = held
		}

		w.mu.Unlock()
	}
}
