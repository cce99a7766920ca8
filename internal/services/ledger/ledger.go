package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/fastprodman/coinledger/internal/cooldown"
	"github.com/fastprodman/coinledger/internal/metrics"
	"github.com/fastprodman/coinledger/internal/random"
	"github.com/fastprodman/coinledger/internal/repos/accounts"
	"github.com/fastprodman/coinledger/internal/repos/items"
	"github.com/fastprodman/coinledger/internal/services/catalog"
	"github.com/fastprodman/coinledger/internal/services/wallet"
)

// Reward is the payout range and cooldown of a reward command.
type Reward struct {
	Min, Max int64
	Cooldown time.Duration
}

var (
	WorkReward  = Reward{Min: 10, Max: 100, Cooldown: 5 * time.Minute}
	DailyReward = Reward{Min: 1_000, Max: 5_000, Cooldown: 24 * time.Hour}
)

type Service struct {
	wallets   *wallet.Cache
	catalog   *catalog.Catalog
	accounts  accounts.Accounts
	cooldowns cooldown.Limiter
	rnd       random.Source

	work, daily Reward
}

type Option func(*Service)

func WithRandom(src random.Source) Option { return func(s *Service) { s.rnd = src } }

func WithRewards(work, daily Reward) Option {
	return func(s *Service) {
		s.work = work
		s.daily = daily
	}
}

func New(
	wallets *wallet.Cache,
	cat *catalog.Catalog,
	accts accounts.Accounts,
	cooldowns cooldown.Limiter,
	opts ...Option,
) *Service {
	s := &Service{
		wallets:   wallets,
		catalog:   cat,
		accounts:  accts,
		cooldowns: cooldowns,
		rnd:       random.Default(),
		work:      WorkReward,
		daily:     DailyReward,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Receipt describes a completed buy or sell.
type Receipt struct {
	Item     items.Item
	Quantity int64
	Total    int64
	Balance  int64
	Held     int64
}

func observe(op string, err error) {
	metrics.LedgerOps.WithLabelValues(op, metrics.Result(err, IsUserError)).Inc()
}

func (s *Service) Register(ctx context.Context, id int64) (err error) {
	defer func() { observe("start", err) }()

	created, err := s.wallets.Create(ctx, id)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	if !created {
		return ErrAlreadyRegistered
	}

	return nil
}

// Close deletes the account and its inventory.
func (s *Service) Close(ctx context.Context, id int64) (err error) {
	defer func() { observe("quit", err) }()

	err = s.wallets.Remove(ctx, id)
	if err != nil {
		return fmt.Errorf("close account: %w", err)
	}

	return nil
}

func (s *Service) Balance(ctx context.Context, id int64) (wallet.Snapshot, error) {
	w, err := s.wallets.Get(ctx, id)
	if err != nil {
		return wallet.Snapshot{}, fmt.Errorf("balance: %w", err)
	}

	return w.Snapshot(), nil
}

func (s *Service) item(name string) (items.Item, error) {
	it, ok := s.catalog.FindByName(name)
	if !ok {
		return items.Item{}, fmt.Errorf("%q: %w", name, ErrItemNotFound)
	}

	return it, nil
}

func total(it items.Item, qty int64) (int64, error) {
	if qty < 1 || qty > math.MaxInt64/it.Price {
		return 0, ErrInvalidAmount
	}

	return it.Price * qty, nil
}

func (s *Service) Buy(ctx context.Context, id int64, itemName string, qty int64) (r Receipt, err error) {
	defer func() { observe("buy", err) }()

	it, err := s.item(itemName)
	if err != nil {
		return Receipt{}, err
	}

	price, err := total(it, qty)
	if err != nil {
		return Receipt{}, err
	}

	w, err := s.wallets.Get(ctx, id)
	if err != nil {
		return Receipt{}, fmt.Errorf("buy: %w", err)
	}

	err = s.wallets.Atomic(ctx, []*wallet.Wallet{w}, func(m *wallet.Mutation) error {
		err := m.Withdraw(w, price)
		if err != nil {
			return err
		}

		err = m.AdjustInventory(w, it.ID, qty)
		if err != nil {
			return err
		}

		r = Receipt{Item: it, Quantity: qty, Total: price, Balance: m.Balance(w), Held: m.Items(w, it.ID)}

		return nil
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("buy %d %s: %w", qty, it.Name, err)
	}

	return r, nil
}

func (s *Service) Sell(ctx context.Context, id int64, itemName string, qty int64) (r Receipt, err error) {
	defer func() { observe("sell", err) }()

	it, err := s.item(itemName)
	if err != nil {
		return Receipt{}, err
	}

	price, err := total(it, qty)
	if err != nil {
		return Receipt{}, err
	}

	w, err := s.wallets.Get(ctx, id)
	if err != nil {
		return Receipt{}, fmt.Errorf("sell: %w", err)
	}

	err = s.wallets.Atomic(ctx, []*wallet.Wallet{w}, func(m *wallet.Mutation) error {
		err := m.AdjustInventory(w, it.ID, -qty)
		if err != nil {
			return err
		}

		err = m.Deposit(w, price)
		if err != nil {
			return err
		}

		r = Receipt{Item: it, Quantity: qty, Total: price, Balance: m.Balance(w), Held: m.Items(w, it.ID)}

		return nil
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("sell %d %s: %w", qty, it.Name, err)
	}

	return r, nil
}

// Trade moves qty units of an item between two accounts. No currency
// changes hands.
func (s *Service) Trade(ctx context.Context, from, to int64, itemName string, qty int64) (err error) {
	defer func() { observe("trade", err) }()

	if from == to {
		return ErrSelfTrade
	}

	it, err := s.item(itemName)
	if err != nil {
		return err
	}

	if qty < 1 {
		return ErrInvalidAmount
	}

	src, dst, err := s.pair(ctx, from, to)
	if err != nil {
		return fmt.Errorf("trade: %w", err)
	}

	err = s.wallets.Atomic(ctx, []*wallet.Wallet{src, dst}, func(m *wallet.Mutation) error {
		err := m.AdjustInventory(src, it.ID, -qty)
		if err != nil {
			return err
		}

		return m.AdjustInventory(dst, it.ID, qty)
	})
	if err != nil {
		return fmt.Errorf("trade %d %s: %w", qty, it.Name, err)
	}

	return nil
}

// Pay moves currency between two accounts.
func (s *Service) Pay(ctx context.Context, from, to, amount int64) (err error) {
	defer func() { observe("pay", err) }()

	if from == to {
		return ErrSelfTrade
	}

	if amount <= 0 {
		return ErrInvalidAmount
	}

	src, dst, err := s.pair(ctx, from, to)
	if err != nil {
		return fmt.Errorf("pay: %w", err)
	}

	err = s.wallets.Atomic(ctx, []*wallet.Wallet{src, dst}, func(m *wallet.Mutation) error {
		err := m.Withdraw(src, amount)
		if err != nil {
			return err
		}

		return m.Deposit(dst, amount)
	})
	if err != nil {
		return fmt.Errorf("pay %d: %w", amount, err)
	}

	return nil
}

func (s *Service) pair(ctx context.Context, a, b int64) (*wallet.Wallet, *wallet.Wallet, error) {
	wa, err := s.wallets.Get(ctx, a)
	if err != nil {
		return nil, nil, err
	}

	wb, err := s.wallets.Get(ctx, b)
	if err != nil {
		return nil, nil, err
	}

	return wa, wb, nil
}

// Work pays a small random reward, at most once per cooldown.
func (s *Service) Work(ctx context.Context, id int64) (int64, error) {
	return s.reward(ctx, "work", id, s.work)
}

// Daily pays a large random reward, at most once per day.
func (s *Service) Daily(ctx context.Context, id int64) (int64, error) {
	return s.reward(ctx, "daily", id, s.daily)
}

func (s *Service) reward(ctx context.Context, command string, id int64, rw Reward) (gained int64, err error) {
	defer func() { observe(command, err) }()

	w, err := s.wallets.Get(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", command, err)
	}

	key := cooldown.Key(command, id)

	left, err := s.cooldowns.Acquire(ctx, key, rw.Cooldown)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", command, err)
	}

	if left > 0 {
		return 0, &CooldownError{Command: command, Remaining: left}
	}

	gained = random.Between(s.rnd, rw.Min, rw.Max)

	err = w.Deposit(ctx, gained)
	if err != nil {
		relErr := s.cooldowns.Release(context.WithoutCancel(ctx), key)
		if relErr != nil {
			slog.Warn("release cooldown", "key", key, "error", relErr)
		}

		return 0, fmt.Errorf("%s: %w", command, err)
	}

	return gained, nil
}

// Leaderboard lists the richest accounts. A non-empty scope limits the
// ranking to those ids.
func (s *Service) Leaderboard(ctx context.Context, limit int, scope []int64) ([]accounts.Account, error) {
	if limit <= 0 {
		limit = 10
	}

	top, err := s.accounts.Top(ctx, limit, scope)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	return top, nil
}

// Store lists the catalog, most expensive first.
func (s *Service) Store() []items.Item {
	return s.catalog.All()
}

// Item looks a catalog entry up by id.
func (s *Service) Item(id int64) (items.Item, bool) {
	return s.catalog.Get(id)
}
