package lottery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/coinledger/internal/metrics"
	"github.com/fastprodman/coinledger/internal/notify"
	"github.com/fastprodman/coinledger/internal/random"
	"github.com/fastprodman/coinledger/internal/repos/accounts"
	"github.com/fastprodman/coinledger/internal/repos/lottery"
	"github.com/fastprodman/coinledger/internal/services/wallet"
)

// EntryFee is the cost of one lottery entry.
const EntryFee = 25

var (
	ErrInvalidDuration = errors.New("round duration must be positive")
	ErrNoVictim        = errors.New("no account above the robbery floor")
)

type Config struct {
	RoundDuration time.Duration
	OpenChance    float64
	ClaimTTL      time.Duration
	RobberyChance float64
	RobberyFloor  int64
}

var DefaultConfig = Config{
	RoundDuration: time.Hour,
	OpenChance:    0.2,
	ClaimTTL:      5 * time.Minute,
	RobberyChance: 0.16,
	RobberyFloor:  25,
}

// Engine runs lottery rounds and robbery events against the wallet cache.
// Its scheduled entry points (DrawDue, MaybeOpen, MaybeRob) are safe to run
// concurrently with each other and with foreground commands.
type Engine struct {
	wallets  *wallet.Cache
	rounds   lottery.Rounds
	accounts accounts.Accounts
	notifier notify.Notifier
	cfg      Config

	rnd random.Source
	now func() time.Time
}

type Option func(*Engine)

func WithRandom(src random.Source) Option { return func(e *Engine) { e.rnd = src } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(
	wallets *wallet.Cache,
	rounds lottery.Rounds,
	accts accounts.Accounts,
	notifier notify.Notifier,
	cfg Config,
	opts ...Option,
) *Engine {
	e := &Engine{
		wallets:  wallets,
		rounds:   rounds,
		accounts: accts,
		notifier: notifier,
		cfg:      cfg,
		rnd:      random.Default(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Current returns the open round.
func (e *Engine) Current(ctx context.Context) (lottery.Round, error) {
	r, err := e.rounds.Current(ctx, e.now())
	if err != nil {
		return lottery.Round{}, fmt.Errorf("current round: %w", err)
	}

	return r, nil
}

func (e *Engine) Round(ctx context.Context, id int64) (lottery.Round, error) {
	r, err := e.rounds.Get(ctx, id)
	if err != nil {
		return lottery.Round{}, fmt.Errorf("round %d: %w", id, err)
	}

	return r, nil
}

// Enter charges the entry fee and adds one entry to the open round. An
// account may enter several times; each entry is one more ticket.
func (e *Engine) Enter(ctx context.Context, accountID int64) (lottery.Round, error) {
	w, err := e.wallets.Get(ctx, accountID)
	if err != nil {
		return lottery.Round{}, fmt.Errorf("enter lottery: %w", err)
	}

	now := e.now()

	round, err := e.rounds.Current(ctx, now)
	if err != nil {
		return lottery.Round{}, fmt.Errorf("enter lottery: %w", err)
	}

	err = e.wallets.Atomic(ctx, []*wallet.Wallet{w}, func(m *wallet.Mutation) error {
		err := m.Withdraw(w, EntryFee)
		if err != nil {
			return err
		}

		round, err = e.rounds.AddEntry(m.Context(), m.Tx(), round.ID, accountID, EntryFee, now)

		return err
	})
	if err != nil {
		return lottery.Round{}, fmt.Errorf("enter round %d: %w", round.ID, err)
	}

	metrics.LotteryEntries.Inc()

	return round, nil
}

// StartRound force-opens a round lasting d. A round already running keeps
// running; entries go to the newest one.
func (e *Engine) StartRound(ctx context.Context, d time.Duration) (lottery.Round, error) {
	if d <= 0 {
		return lottery.Round{}, ErrInvalidDuration
	}

	now := e.now()

	r, err := e.rounds.ForceOpen(ctx, now, now.Add(d))
	if err != nil {
		return lottery.Round{}, fmt.Errorf("start round: %w", err)
	}

	return r, nil
}

// EndRound closes a round early and draws it right away.
func (e *Engine) EndRound(ctx context.Context, id int64) (Result, error) {
	err := e.rounds.ForceEnd(ctx, id, e.now())
	if err != nil {
		return Result{}, fmt.Errorf("end round %d: %w", id, err)
	}

	res, err := e.Draw(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("end round %d: %w", id, err)
	}

	return res, nil
}

// MaybeOpen opens a round with probability OpenChance. Finding a round
// already open is not an error.
func (e *Engine) MaybeOpen(ctx context.Context) (bool, error) {
	if e.rnd.Float64() >= e.cfg.OpenChance {
		return false, nil
	}

	now := e.now()

	_, err := e.rounds.Open(ctx, now, now.Add(e.cfg.RoundDuration))
	if err != nil {
		if errors.Is(err, lottery.ErrRoundAlreadyOpen) {
			return false, nil
		}

		return false, fmt.Errorf("open round: %w", err)
	}

	return true, nil
}
