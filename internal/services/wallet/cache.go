package wallet

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/metrics"
	"github.com/fastprodman/coinledger/internal/repos/accounts"
	"github.com/fastprodman/coinledger/internal/repos/inventory"
)

// Cache maps account ids to live wallets. Entries stay for the life of the
// process unless the account is removed.
type Cache struct {
	tx        pgutils.Transactor
	accounts  accounts.Accounts
	inventory inventory.Inventory

	mu      sync.RWMutex
	wallets map[int64]*Wallet
	// gens counts evictions per id. A load that saw an eviction land while
	// it was reading is discarded and read again.
	gens  map[int64]uint64
	loads singleflight.Group
}

func NewCache(tx pgutils.Transactor, accts accounts.Accounts, inv inventory.Inventory) *Cache {
	return &Cache{
		tx:        tx,
		accounts:  accts,
		inventory: inv,
		wallets:   make(map[int64]*Wallet),
		gens:      make(map[int64]uint64),
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.wallets)
}

// Get returns the cached wallet, loading the account and its inventory on
// first access. Concurrent first loads of the same id share one store read.
func (c *Cache) Get(ctx context.Context, id int64) (*Wallet, error) {
	c.mu.RLock()
	w, ok := c.wallets[id]
	c.mu.RUnlock()

	if ok {
		return w, nil
	}

	v, err, _ := c.loads.Do(strconv.FormatInt(id, 10), func() (any, error) {
		for {
			c.mu.RLock()
			w, ok := c.wallets[id]
			gen := c.gens[id]
			c.mu.RUnlock()

			if ok {
				return w, nil
			}

			w = &Wallet{id: id, cache: c}

			err := c.load(ctx, w)
			if err != nil {
				return nil, err
			}

			if cur, ok := c.insert(w, gen); ok {
				return cur, nil
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("load wallet %d: %w", id, err)
	}

	return v.(*Wallet), nil
}

// insert caches w unless the id was evicted since gen was read. It returns
// the wallet already cached when there is one.
func (c *Cache) insert(w *Wallet, gen uint64) (*Wallet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.wallets[w.id]; ok {
		return cur, true
	}

	if c.gens[w.id] != gen {
		return nil, false
	}

	c.wallets[w.id] = w
	metrics.CachedWallets.Set(float64(len(c.wallets)))

	return w, true
}

func (c *Cache) load(ctx context.Context, w *Wallet) error {
	acc, err := c.accounts.Get(ctx, w.id)
	if err != nil {
		return err
	}

	held, err := c.inventory.List(ctx, w.id)
	if err != nil {
		return err
	}

	w.set(acc.Balance, held)

	return nil
}

// Create inserts a zero-balance account. It reports false when the account
// already existed.
func (c *Cache) Create(ctx context.Context, id int64) (bool, error) {
	var created bool

	err := c.tx.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = c.accounts.Create(ctx, tx, id)

		return err
	})
	if err != nil {
		return false, fmt.Errorf("create account %d: %w", id, err)
	}

	return created, nil
}

// Remove deletes the account with its inventory and evicts the wallet.
// Handles still held elsewhere fail every later mutation with
// accounts.ErrAccountNotFound.
func (c *Cache) Remove(ctx context.Context, id int64) error {
	w, err := c.Get(ctx, id)
	if err != nil {
		return err
	}

	w.op.Lock()
	defer w.op.Unlock()

	err = c.tx.WithTx(ctx, func(tx *sql.Tx) error {
		return c.accounts.Delete(ctx, tx, id)
	})
	if err != nil && !errors.Is(err, accounts.ErrAccountNotFound) {
		return fmt.Errorf("remove account %d: %w", id, err)
	}

	c.evict(w)

	if err != nil {
		return fmt.Errorf("remove account %d: %w", id, err)
	}

	return nil
}

func (c *Cache) evict(w *Wallet) {
	w.markRemoved()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wallets[w.id] == w {
		delete(c.wallets, w.id)
	}

	c.gens[w.id]++
	c.loads.Forget(strconv.FormatInt(w.id, 10))
	metrics.CachedWallets.Set(float64(len(c.wallets)))
}

// Atomic runs fn as one store transaction over the given wallets.
//
// The wallets' mutation locks are taken in ascending account id order and
// held until the transaction ends, so two operations over the same pair of
// accounts cannot deadlock. Pending values recorded by the Mutation are
// applied to the wallets only after a successful commit. A store failure
// marks the wallets stale; they are reloaded before their next mutation.
func (c *Cache) Atomic(ctx context.Context, ws []*Wallet, fn func(*Mutation) error) error {
	ordered := lockOrder(ws)

	for _, w := range ordered {
		w.op.Lock()
	}

	defer func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			ordered[i].op.Unlock()
		}
	}()

	for _, w := range ordered {
		removed, stale := w.flags()
		if removed {
			return fmt.Errorf("wallet %d: %w", w.id, accounts.ErrAccountNotFound)
		}

		if !stale {
			continue
		}

		err := c.load(ctx, w)
		if err != nil {
			if errors.Is(err, accounts.ErrAccountNotFound) {
				c.evict(w)
			}

			return fmt.Errorf("reload wallet %d: %w", w.id, err)
		}
	}

	m := newMutation(ctx, ordered)

	err := c.tx.WithTx(ctx, func(tx *sql.Tx) error {
		m.tx = tx

		return fn(m)
	})
	if err != nil {
		if errors.Is(err, pgutils.ErrStoreUnavailable) {
			for _, w := range ordered {
				w.markStale()
			}
		}

		for _, w := range m.gone {
			c.evict(w)
		}

		return err
	}

	m.apply()

	return nil
}

func lockOrder(ws []*Wallet) []*Wallet {
	out := slices.Clone(ws)
	slices.SortFunc(out, func(a, b *Wallet) int { return cmp.Compare(a.id, b.id) })

	return slices.CompactFunc(out, func(a, b *Wallet) bool { return a == b })
}
