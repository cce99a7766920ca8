// Package memstore is an in-process implementation of the repository
// interfaces used by service tests and by the API when no database is
// configured.
//
// WithTx holds a store-wide lock for the whole callback and restores a
// snapshot when the callback fails, so repository methods taking a *sql.Tx
// (always nil here) must only be called from inside WithTx. The other
// methods take the lock themselves.
package memstore

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/repos/items"
	"github.com/fastprodman/coinledger/internal/repos/lottery"
)

var errInjected = errors.New("injected failure")

var _ pgutils.Transactor = (*Store)(nil)

type state struct {
	balances  map[int64]int64
	inventory map[int64]map[int64]int64
	rounds    []lottery.Round
}

type Store struct {
	mu sync.Mutex
	state
	items []items.Item

	failCommits int
	failReads   int
}

func New(catalog ...items.Item) *Store {
	return &Store{
		state: state{
			balances:  make(map[int64]int64),
			inventory: make(map[int64]map[int64]int64),
		},
		items: slices.Clone(catalog),
	}
}

// FailCommits makes the next n transactions fail after their callback ran,
// as a lost connection at commit would. Their writes are rolled back.
func (s *Store) FailCommits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failCommits = n
}

// FailReads makes the next n non-transactional reads fail.
func (s *Store) FailReads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failReads = n
}

// SetBalance creates or overwrites an account row.
func (s *Store) SetBalance(id, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[id] = balance
}

// Balance reads the stored balance bypassing any cache.
func (s *Store) Balance(id int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[id]

	return b, ok
}

// ItemCount reads the stored inventory count bypassing any cache.
func (s *Store) ItemCount(accountID, itemID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inventory[accountID][itemID]
}

func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	err := ctx.Err()
	if err != nil {
		return pgutils.Wrap("begin tx", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()

	err = fn(nil)
	if err != nil {
		s.state = snap

		return err
	}

	if s.failCommits > 0 {
		s.failCommits--
		s.state = snap

		return pgutils.Wrap("commit tx", errInjected)
	}

	return nil
}

// read runs fn under the lock unless a read failure is pending.
func (s *Store) read(op string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failReads > 0 {
		s.failReads--

		return pgutils.Wrap(op, errInjected)
	}

	return fn()
}

func (s *Store) snapshot() state {
	inv := make(map[int64]map[int64]int64, len(s.inventory))
	for id, held := range s.inventory {
		inv[id] = maps.Clone(held)
	}

	rounds := make([]lottery.Round, len(s.rounds))
	for i, r := range s.rounds {
		rounds[i] = cloneRound(r)
	}

	return state{
		balances:  maps.Clone(s.balances),
		inventory: inv,
		rounds:    rounds,
	}
}

func cloneRound(r lottery.Round) lottery.Round {
	r.Entrants = slices.Clone(r.Entrants)

	if r.Winner != nil {
		w := *r.Winner
		r.Winner = &w
	}

	if r.ClaimedAt != nil {
		t := *r.ClaimedAt
		r.ClaimedAt = &t
	}

	if r.ClosedAt != nil {
		t := *r.ClosedAt
		r.ClosedAt = &t
	}

	return r
}
