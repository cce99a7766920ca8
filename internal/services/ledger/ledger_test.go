package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/coinledger/internal/cooldown"
	"github.com/fastprodman/coinledger/internal/infra/memstore"
	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/random"
	"github.com/fastprodman/coinledger/internal/repos/items"
	"github.com/fastprodman/coinledger/internal/services/catalog"
	"github.com/fastprodman/coinledger/internal/services/wallet"
)

var testItems = []items.Item{
	{ID: 1, Name: "Sword", Price: 50},
	{ID: 2, Name: "Shield", Price: 75},
}

type fixture struct {
	svc   *Service
	store *memstore.Store
	clock *time.Time
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()

	store := memstore.New(testItems...)

	cat, err := catalog.Load(t.Context(), store.Items())
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := &now

	cache := wallet.NewCache(store, store.Accounts(), store.Inventory())
	limiter := cooldown.NewMemory(func() time.Time { return *clock })

	return fixture{
		svc:   New(cache, cat, store.Accounts(), limiter, opts...),
		store: store,
		clock: clock,
	}
}

// fixedSource replays queued Int64N results.
type fixedSource struct {
	random.Source

	mu   sync.Mutex
	next []int64
}

func (f *fixedSource) Int64N(n int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := f.next[0]
	f.next = f.next[1:]

	return v % n
}

func TestRegister(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	require.NoError(t, f.svc.Register(ctx, 1))
	require.ErrorIs(t, f.svc.Register(ctx, 1), ErrAlreadyRegistered)

	snap, err := f.svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, snap.Balance)

	_, err = f.svc.Balance(ctx, 2)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSwordScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	f.store.SetBalance(1, 100)

	r, err := f.svc.Buy(ctx, 1, "sword", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.Balance)
	assert.Equal(t, int64(2), r.Held)

	_, err = f.svc.Sell(ctx, 1, "Sword", 3)
	require.ErrorIs(t, err, ErrInsufficientItems)

	snap, err := f.svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Balance)
	assert.Equal(t, int64(2), snap.Items[1])
	assert.Equal(t, int64(2), f.store.ItemCount(1, 1))
}

func TestBuySell_RoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	f.store.SetBalance(1, 1_000)

	before, err := f.svc.Balance(ctx, 1)
	require.NoError(t, err)

	_, err = f.svc.Buy(ctx, 1, "Shield", 4)
	require.NoError(t, err)

	_, err = f.svc.Sell(ctx, 1, "Shield", 4)
	require.NoError(t, err)

	after, err := f.svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before.Balance, after.Balance)
	assert.Empty(t, after.Items)
}

func TestBuy_Rejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	f.store.SetBalance(1, 60)

	_, err := f.svc.Buy(ctx, 1, "Swor", 1)
	require.ErrorIs(t, err, ErrItemNotFound)

	_, err = f.svc.Buy(ctx, 1, "Sword", 2)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = f.svc.Buy(ctx, 1, "Sword", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.Buy(ctx, 1, "Sword", 1<<62)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.Buy(ctx, 9, "Sword", 1)
	require.ErrorIs(t, err, ErrAccountNotFound)

	bal, _ := f.store.Balance(1)
	assert.Equal(t, int64(60), bal)
}

func TestWorkPayScenario(t *testing.T) {
	t.Parallel()

	// Int64N(91) results 27 and 80 give rewards 37 and 90.
	src := &fixedSource{next: []int64{27, 80}}
	f := newFixture(t, WithRandom(src))
	ctx := t.Context()

	require.NoError(t, f.svc.Register(ctx, 1))
	require.NoError(t, f.svc.Register(ctx, 2))

	first, err := f.svc.Work(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(37), first)

	_, err = f.svc.Work(ctx, 1)
	require.ErrorIs(t, err, ErrOnCooldown)

	var cdErr *CooldownError
	require.ErrorAs(t, err, &cdErr)
	assert.Equal(t, 5*time.Minute, cdErr.Remaining)

	*f.clock = f.clock.Add(5 * time.Minute)

	second, err := f.svc.Work(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(90), second)

	a, err := f.svc.Balance(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Pay(ctx, 1, 2, a.Balance))

	err = f.svc.Pay(ctx, 1, 2, 1)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	a, _ = f.svc.Balance(ctx, 1)
	b, _ := f.svc.Balance(ctx, 2)
	assert.Equal(t, int64(0), a.Balance)
	assert.Equal(t, first+second, b.Balance)
}

func TestWork_RangeAndCooldownRelease(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithRandom(random.Seeded(7)))
	ctx := t.Context()
	f.store.SetBalance(1, 0)

	gained, err := f.svc.Daily(ctx, 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, gained, int64(1_000))
	assert.LessOrEqual(t, gained, int64(5_000))

	f.store.FailCommits(1)

	_, err = f.svc.Work(ctx, 1)
	require.ErrorIs(t, err, pgutils.ErrStoreUnavailable)
	assert.False(t, IsUserError(err))

	// The failed reward did not consume the cooldown.
	gained, err = f.svc.Work(ctx, 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, gained, int64(10))
	assert.LessOrEqual(t, gained, int64(100))
}

func TestTrade(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	f.store.SetBalance(1, 200)
	f.store.SetBalance(2, 0)

	_, err := f.svc.Buy(ctx, 1, "Sword", 3)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Trade(ctx, 1, 1, "Sword", 1), ErrSelfTrade)
	require.ErrorIs(t, f.svc.Trade(ctx, 1, 2, "Sword", 4), ErrInsufficientItems)
	require.ErrorIs(t, f.svc.Trade(ctx, 1, 3, "Sword", 1), ErrAccountNotFound)

	require.NoError(t, f.svc.Trade(ctx, 1, 2, "sword", 2))

	a, _ := f.svc.Balance(ctx, 1)
	b, _ := f.svc.Balance(ctx, 2)
	assert.Equal(t, int64(1), a.Items[1])
	assert.Equal(t, int64(2), b.Items[1])
	assert.Equal(t, int64(50), a.Balance)
	assert.Equal(t, int64(0), b.Balance)
}

func TestPay_ConcurrentBothDirections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	f.store.SetBalance(1, 100)
	f.store.SetBalance(2, 100)

	var wg sync.WaitGroup

	for i := range 40 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			from, to := int64(1), int64(2)
			if i%2 == 1 {
				from, to = to, from
			}

			err := f.svc.Pay(ctx, from, to, 7)
			if err != nil && !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("pay: %v", err)
			}
		}()
	}

	wg.Wait()

	a, _ := f.store.Balance(1)
	b, _ := f.store.Balance(2)
	assert.Equal(t, int64(200), a+b)
	assert.GreaterOrEqual(t, a, int64(0))
	assert.GreaterOrEqual(t, b, int64(0))
}

func TestPay_Rejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	f.store.SetBalance(1, 10)

	require.ErrorIs(t, f.svc.Pay(ctx, 1, 1, 5), ErrSelfTrade)
	require.ErrorIs(t, f.svc.Pay(ctx, 1, 2, 5), ErrAccountNotFound)
	require.ErrorIs(t, f.svc.Pay(ctx, 1, 2, 0), ErrInvalidAmount)
}

func TestCloseAndLeaderboard(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	f.store.SetBalance(1, 10)
	f.store.SetBalance(2, 30)
	f.store.SetBalance(3, 20)

	top, err := f.svc.Leaderboard(ctx, 2, nil)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(2), top[0].ID)
	assert.Equal(t, int64(3), top[1].ID)

	require.NoError(t, f.svc.Close(ctx, 2))
	require.ErrorIs(t, f.svc.Close(ctx, 2), ErrAccountNotFound)

	top, err = f.svc.Leaderboard(ctx, 0, []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(1), top[0].ID)

	store := f.svc.Store()
	require.Len(t, store, 2)
	assert.Equal(t, "Shield", store[0].Name)

	it, ok := f.svc.Item(2)
	require.True(t, ok)
	assert.Equal(t, "Shield", it.Name)

	_, ok = f.svc.Item(99)
	assert.False(t, ok)
}

func TestIsUserError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsUserError(ErrSelfTrade))
	assert.True(t, IsUserError(&CooldownError{Command: "work", Remaining: time.Second}))
	assert.False(t, IsUserError(errors.New("boom")))
	assert.False(t, IsUserError(nil))
	assert.False(t, IsUserError(pgutils.Wrap("x", ErrAccountNotFound)))
}
