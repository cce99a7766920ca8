package memstore

import (
	"cmp"
	"context"
	"database/sql"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/fastprodman/coinledger/internal/repos/accounts"
	"github.com/fastprodman/coinledger/internal/repos/inventory"
)

var (
	_ accounts.Accounts   = accountsView{}
	_ inventory.Inventory = inventoryView{}
)

type accountsView struct{ s *Store }

func (s *Store) Accounts() accounts.Accounts { return accountsView{s} }

func (v accountsView) Create(_ context.Context, _ *sql.Tx, id int64) (bool, error) {
	if _, ok := v.s.balances[id]; ok {
		return false, nil
	}

	v.s.balances[id] = 0

	return true, nil
}

func (v accountsView) Delete(_ context.Context, _ *sql.Tx, id int64) error {
	if _, ok := v.s.balances[id]; !ok {
		return accounts.ErrAccountNotFound
	}

	delete(v.s.balances, id)
	delete(v.s.inventory, id)

	return nil
}

func (v accountsView) Get(_ context.Context, id int64) (accounts.Account, error) {
	var acc accounts.Account

	err := v.s.read("get account", func() error {
		bal, ok := v.s.balances[id]
		if !ok {
			return accounts.ErrAccountNotFound
		}

		acc = accounts.Account{ID: id, Balance: bal}

		return nil
	})

	return acc, err
}

func (v accountsView) IncreaseBalance(_ context.Context, _ *sql.Tx, id, amount int64) (int64, error) {
	bal, ok := v.s.balances[id]
	if !ok {
		return 0, accounts.ErrAccountNotFound
	}

	bal += amount
	v.s.balances[id] = bal

	return bal, nil
}

func (v accountsView) DecreaseBalance(_ context.Context, _ *sql.Tx, id, amount int64) (int64, error) {
	bal, ok := v.s.balances[id]
	if !ok {
		return 0, accounts.ErrAccountNotFound
	}

	if bal < amount {
		return 0, accounts.ErrInsufficientFunds
	}

	bal -= amount
	v.s.balances[id] = bal

	return bal, nil
}

func (v accountsView) Top(_ context.Context, limit int, scope []int64) ([]accounts.Account, error) {
	var out []accounts.Account

	err := v.s.read("list top accounts", func() error {
		for id, bal := range v.s.balances {
			if len(scope) > 0 && !slices.Contains(scope, id) {
				continue
			}

			out = append(out, accounts.Account{ID: id, Balance: bal})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b accounts.Account) int {
		if c := cmp.Compare(b.Balance, a.Balance); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (v accountsView) RandomAbove(_ context.Context, floor int64) (accounts.Account, error) {
	var acc accounts.Account

	err := v.s.read("pick random account", func() error {
		var eligible []int64

		for _, id := range slices.Sorted(maps.Keys(v.s.balances)) {
			if v.s.balances[id] > floor {
				eligible = append(eligible, id)
			}
		}

		if len(eligible) == 0 {
			return accounts.ErrAccountNotFound
		}

		id := eligible[rand.IntN(len(eligible))]
		acc = accounts.Account{ID: id, Balance: v.s.balances[id]}

		return nil
	})

	return acc, err
}

type inventoryView struct{ s *Store }

func (s *Store) Inventory() inventory.Inventory { return inventoryView{s} }

func (v inventoryView) List(_ context.Context, accountID int64) (map[int64]int64, error) {
	out := make(map[int64]int64)

	err := v.s.read("list inventory", func() error {
		for item, n := range v.s.inventory[accountID] {
			if n > 0 {
				out[item] = n
			}
		}

		return nil
	})

	return out, err
}

func (v inventoryView) Adjust(_ context.Context, _ *sql.Tx, accountID, itemID, delta int64) (int64, error) {
	held := v.s.inventory[accountID]
	cur := held[itemID]

	if delta < 0 && cur < -delta {
		return 0, inventory.ErrInsufficientItems
	}

	if delta > 0 {
		if _, ok := v.s.balances[accountID]; !ok {
			return 0, accounts.ErrAccountNotFound
		}
	}

	next := cur + delta

	switch {
	case next == 0 && held != nil:
		delete(held, itemID)
	case next > 0:
		if held == nil {
			held = make(map[int64]int64)
			v.s.inventory[accountID] = held
		}

		held[itemID] = next
	}

	return next, nil
}
