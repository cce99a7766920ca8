// Package economy is the single entry point the command surface talks to.
// It composes the ledger and the lottery engine and owns the two-step
// account closing flow.
package economy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/repos/accounts"
	"github.com/fastprodman/coinledger/internal/repos/items"
	lotteryrepo "github.com/fastprodman/coinledger/internal/repos/lottery"
	"github.com/fastprodman/coinledger/internal/services/ledger"
	"github.com/fastprodman/coinledger/internal/services/lottery"
	"github.com/fastprodman/coinledger/internal/services/wallet"
)

var ErrConfirmationExpired = errors.New("confirmation expired or unknown")

const DefaultQuitTimeout = 10 * time.Second

type pendingQuit struct {
	accountID int64
	expires   time.Time
}

type Service struct {
	ledger  *ledger.Service
	lottery *lottery.Engine

	quitTimeout time.Duration
	now         func() time.Time

	mu      sync.Mutex
	pending map[uuid.UUID]pendingQuit
}

type Option func(*Service)

func WithQuitTimeout(d time.Duration) Option { return func(s *Service) { s.quitTimeout = d } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(l *ledger.Service, e *lottery.Engine, opts ...Option) *Service {
	s := &Service{
		ledger:      l,
		lottery:     e,
		quitTimeout: DefaultQuitTimeout,
		now:         time.Now,
		pending:     make(map[uuid.UUID]pendingQuit),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) Start(ctx context.Context, id int64) error {
	return s.ledger.Register(ctx, id)
}

// RequestQuit issues a confirmation token. Nothing is deleted until the
// token is confirmed before it expires.
func (s *Service) RequestQuit(ctx context.Context, id int64) (uuid.UUID, time.Time, error) {
	_, err := s.ledger.Balance(ctx, id)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("request quit: %w", err)
	}

	token := uuid.New()
	now := s.now()
	expires := now.Add(s.quitTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	for t, p := range s.pending {
		if p.accountID == id || !now.Before(p.expires) {
			delete(s.pending, t)
		}
	}

	s.pending[token] = pendingQuit{accountID: id, expires: expires}

	return token, expires, nil
}

// ConfirmQuit deletes the account if token was issued to it and has not
// expired. A token is single use.
func (s *Service) ConfirmQuit(ctx context.Context, id int64, token uuid.UUID) error {
	s.mu.Lock()
	p, ok := s.pending[token]
	if ok && p.accountID == id {
		delete(s.pending, token)
	}
	s.mu.Unlock()

	if !ok || p.accountID != id || !s.now().Before(p.expires) {
		return ErrConfirmationExpired
	}

	return s.ledger.Close(ctx, id)
}

func (s *Service) Balance(ctx context.Context, id int64) (wallet.Snapshot, error) {
	return s.ledger.Balance(ctx, id)
}

func (s *Service) Pay(ctx context.Context, from, to, amount int64) error {
	return s.ledger.Pay(ctx, from, to, amount)
}

func (s *Service) Work(ctx context.Context, id int64) (int64, error) {
	return s.ledger.Work(ctx, id)
}

func (s *Service) Daily(ctx context.Context, id int64) (int64, error) {
	return s.ledger.Daily(ctx, id)
}

func (s *Service) Leaderboard(ctx context.Context, limit int, scope []int64) ([]accounts.Account, error) {
	return s.ledger.Leaderboard(ctx, limit, scope)
}

func (s *Service) Store() []items.Item {
	return s.ledger.Store()
}

func (s *Service) Item(id int64) (items.Item, bool) {
	return s.ledger.Item(id)
}

func (s *Service) Buy(ctx context.Context, id int64, item string, qty int64) (ledger.Receipt, error) {
	return s.ledger.Buy(ctx, id, item, qty)
}

func (s *Service) Sell(ctx context.Context, id int64, item string, qty int64) (ledger.Receipt, error) {
	return s.ledger.Sell(ctx, id, item, qty)
}

func (s *Service) Trade(ctx context.Context, from, to int64, item string, qty int64) error {
	return s.ledger.Trade(ctx, from, to, item, qty)
}

func (s *Service) Lottery(ctx context.Context) (lotteryrepo.Round, error) {
	return s.lottery.Current(ctx)
}

func (s *Service) Round(ctx context.Context, id int64) (lotteryrepo.Round, error) {
	return s.lottery.Round(ctx, id)
}

func (s *Service) Enter(ctx context.Context, id int64) (lotteryrepo.Round, error) {
	return s.lottery.Enter(ctx, id)
}

func (s *Service) StartLottery(ctx context.Context, d time.Duration) (lotteryrepo.Round, error) {
	return s.lottery.StartRound(ctx, d)
}

func (s *Service) EndLottery(ctx context.Context, roundID int64) (lottery.Result, error) {
	return s.lottery.EndRound(ctx, roundID)
}

var userErrors = []error{
	ErrConfirmationExpired,
	lotteryrepo.ErrRoundNotOpen,
	lotteryrepo.ErrRoundNotFound,
	lotteryrepo.ErrRoundAlreadyOpen,
	lotteryrepo.ErrClaimLost,
	lotteryrepo.ErrInvalidRoundRange,
	lottery.ErrInvalidDuration,
}

// IsUserError reports whether err is a rejected request, to be shown to the
// caller as is, rather than a system fault.
func IsUserError(err error) bool {
	if ledger.IsUserError(err) {
		return true
	}

	if err == nil || errors.Is(err, pgutils.ErrStoreUnavailable) {
		return false
	}

	for _, target := range userErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
