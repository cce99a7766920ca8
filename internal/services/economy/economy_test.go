package economy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/coinledger/internal/cooldown"
	"github.com/fastprodman/coinledger/internal/infra/memstore"
	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/notify"
	"github.com/fastprodman/coinledger/internal/repos/items"
	lotteryrepo "github.com/fastprodman/coinledger/internal/repos/lottery"
	"github.com/fastprodman/coinledger/internal/services/catalog"
	"github.com/fastprodman/coinledger/internal/services/ledger"
	"github.com/fastprodman/coinledger/internal/services/lottery"
	"github.com/fastprodman/coinledger/internal/services/wallet"
)

type discard struct{}

func (discard) Notify(context.Context, notify.Notification) {}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

func newService(t *testing.T) (*Service, *memstore.Store, *clock) {
	t.Helper()

	store := memstore.New(items.Item{ID: 1, Name: "Sword", Price: 50})

	cat, err := catalog.Load(t.Context(), store.Items())
	require.NoError(t, err)

	clk := &clock{t: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	cache := wallet.NewCache(store, store.Accounts(), store.Inventory())

	l := ledger.New(cache, cat, store.Accounts(), cooldown.NewMemory(clk.now))
	e := lottery.New(cache, store.Rounds(), store.Accounts(), discard{}, lottery.DefaultConfig, lottery.WithClock(clk.now))

	return New(l, e, WithClock(clk.now)), store, clk
}

func TestQuit_ConfirmWithinWindow(t *testing.T) {
	t.Parallel()

	svc, store, _ := newService(t)
	ctx := t.Context()

	require.NoError(t, svc.Start(ctx, 1))
	_, err := svc.Buy(ctx, 1, "sword", 1)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	token, expires, err := svc.RequestQuit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, expires.Sub(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)))

	require.ErrorIs(t, svc.ConfirmQuit(ctx, 2, token), ErrConfirmationExpired)
	require.NoError(t, svc.ConfirmQuit(ctx, 1, token))

	_, ok := store.Balance(1)
	assert.False(t, ok)

	require.ErrorIs(t, svc.ConfirmQuit(ctx, 1, token), ErrConfirmationExpired)

	_, err = svc.Balance(ctx, 1)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	// The account can be started again.
	require.NoError(t, svc.Start(ctx, 1))
}

func TestQuit_ExpiredTokenLeavesAccount(t *testing.T) {
	t.Parallel()

	svc, store, clk := newService(t)
	ctx := t.Context()

	store.SetBalance(1, 40)

	token, _, err := svc.RequestQuit(ctx, 1)
	require.NoError(t, err)

	clk.advance(10 * time.Second)

	require.ErrorIs(t, svc.ConfirmQuit(ctx, 1, token), ErrConfirmationExpired)

	bal, ok := store.Balance(1)
	assert.True(t, ok)
	assert.Equal(t, int64(40), bal)

	require.ErrorIs(t, svc.ConfirmQuit(ctx, 1, uuid.New()), ErrConfirmationExpired)

	_, _, err = svc.RequestQuit(ctx, 7)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestQuit_NewRequestReplacesOld(t *testing.T) {
	t.Parallel()

	svc, store, _ := newService(t)
	ctx := t.Context()
	store.SetBalance(1, 0)

	first, _, err := svc.RequestQuit(ctx, 1)
	require.NoError(t, err)

	second, _, err := svc.RequestQuit(ctx, 1)
	require.NoError(t, err)

	require.ErrorIs(t, svc.ConfirmQuit(ctx, 1, first), ErrConfirmationExpired)
	require.NoError(t, svc.ConfirmQuit(ctx, 1, second))
}

func TestFacade_LotteryFlow(t *testing.T) {
	t.Parallel()

	svc, store, clk := newService(t)
	ctx := t.Context()
	store.SetBalance(1, 25)

	_, err := svc.Enter(ctx, 1)
	require.ErrorIs(t, err, lotteryrepo.ErrRoundNotOpen)
	assert.True(t, IsUserError(err))

	r, err := svc.StartLottery(ctx, time.Hour)
	require.NoError(t, err)

	_, err = svc.Enter(ctx, 1)
	require.NoError(t, err)

	cur, err := svc.Lottery(ctx)
	require.NoError(t, err)
	assert.Equal(t, r.ID, cur.ID)

	clk.advance(time.Minute)

	res, err := svc.EndLottery(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Winner)

	got, err := svc.Round(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Payout, got.Payout)
}

func TestIsUserError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsUserError(ErrConfirmationExpired))
	assert.True(t, IsUserError(ledger.ErrSelfTrade))
	assert.True(t, IsUserError(lottery.ErrInvalidDuration))
	assert.False(t, IsUserError(pgutils.Wrap("get", lotteryrepo.ErrRoundNotFound)))
	assert.False(t, IsUserError(nil))
}
