package lottery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/coinledger/internal/metrics"
	"github.com/fastprodman/coinledger/internal/notify"
	"github.com/fastprodman/coinledger/internal/repos/accounts"
	"github.com/fastprodman/coinledger/internal/repos/lottery"
	"github.com/fastprodman/coinledger/internal/services/wallet"
)

// Result is the outcome of one draw. Winner is nil for a round nobody
// entered.
type Result struct {
	RoundID  int64
	Winner   *int64
	Payout   int64
	Bonus    int64
	Entrants int
}

// DrawDue draws every round past its end time. A round another scan has
// claimed is skipped. Failures are returned together after all rounds were
// tried; the rounds stay due and are retried on the next call.
func (e *Engine) DrawDue(ctx context.Context) ([]Result, error) {
	ids, err := e.rounds.ListDue(ctx, e.now())
	if err != nil {
		return nil, fmt.Errorf("list due rounds: %w", err)
	}

	var (
		results []Result
		errs    []error
	)

	for _, id := range ids {
		res, err := e.Draw(ctx, id)
		if err != nil {
			if errors.Is(err, lottery.ErrClaimLost) {
				slog.Debug("lottery round claimed elsewhere", "round_id", id)

				continue
			}

			errs = append(errs, err)

			continue
		}

		results = append(results, res)
	}

	return results, errors.Join(errs...)
}

// Draw claims one due round and pays its winner. The claim and the closing
// update are both conditional, so a round is paid at most once even when
// draws overlap: a draw whose claim was taken over rolls its payout back.
// A draw that fails for any other reason gives its claim up, so the next
// scan retries the round.
func (e *Engine) Draw(ctx context.Context, roundID int64) (Result, error) {
	now := e.now()
	token := uuid.New()

	r, err := e.rounds.Claim(ctx, roundID, token, now, now.Add(-e.cfg.ClaimTTL))
	if err != nil {
		if errors.Is(err, lottery.ErrClaimLost) {
			metrics.LotteryDraws.WithLabelValues("lost_claim").Inc()
		}

		return Result{}, fmt.Errorf("claim round %d: %w", roundID, err)
	}

	res, err := e.settle(ctx, r, token, now)
	if err != nil {
		metrics.LotteryDraws.WithLabelValues("failed").Inc()

		if !errors.Is(err, lottery.ErrClaimLost) {
			e.release(ctx, roundID, token)
		}

		return Result{}, err
	}

	return res, nil
}

func (e *Engine) settle(ctx context.Context, r lottery.Round, token uuid.UUID, now time.Time) (Result, error) {
	candidates := slices.Clone(r.Entrants)

	for {
		if len(candidates) == 0 {
			err := e.wallets.Atomic(ctx, nil, func(m *wallet.Mutation) error {
				return e.rounds.Close(m.Context(), m.Tx(), r.ID, token, nil, 0, now)
			})
			if err != nil {
				return Result{}, fmt.Errorf("close empty round %d: %w", r.ID, err)
			}

			metrics.LotteryDraws.WithLabelValues("empty").Inc()

			return Result{RoundID: r.ID, Entrants: len(r.Entrants)}, nil
		}

		winner, bonus := e.pick(candidates)
		payout := r.Pool * bonus

		err := e.payout(ctx, r.ID, token, winner, payout, now)
		if errors.Is(err, accounts.ErrAccountNotFound) {
			// The winner quit before the draw; draw again among the rest.
			candidates = slices.DeleteFunc(candidates, func(id int64) bool { return id == winner })

			continue
		}

		if err != nil {
			return Result{}, fmt.Errorf("pay round %d: %w", r.ID, err)
		}

		metrics.LotteryDraws.WithLabelValues("winner").Inc()
		slog.Info("lottery drawn", "round_id", r.ID, "winner", winner, "payout", payout, "bonus", bonus)

		e.notifier.Notify(ctx, notify.Notification{
			AccountID: winner,
			Kind:      notify.KindLotteryWin,
			Amount:    payout,
			RoundID:   r.ID,
			Message:   fmt.Sprintf("You won the lottery! You won %d", payout),
		})

		return Result{
			RoundID:  r.ID,
			Winner:   &winner,
			Payout:   payout,
			Bonus:    bonus,
			Entrants: len(r.Entrants),
		}, nil
	}
}

// release gives up a claim after a failed draw. If this fails too, the
// claim goes stale after ClaimTTL and a later scan takes it over.
func (e *Engine) release(ctx context.Context, roundID int64, token uuid.UUID) {
	err := e.rounds.Release(context.WithoutCancel(ctx), roundID, token)
	if err != nil {
		slog.Warn("release lottery claim", "round_id", roundID, "error", err)
	}
}

// pick chooses a winning entry uniformly. A sole participant, however many
// entries they hold, wins with a bonus multiplier in [1,5].
func (e *Engine) pick(entrants []int64) (int64, int64) {
	first := entrants[0]

	if !slices.ContainsFunc(entrants, func(id int64) bool { return id != first }) {
		return first, int64(e.rnd.IntN(5)) + 1
	}

	return entrants[e.rnd.IntN(len(entrants))], 1
}

func (e *Engine) payout(
	ctx context.Context,
	roundID int64,
	token uuid.UUID,
	winner, amount int64,
	now time.Time,
) error {
	w, err := e.wallets.Get(ctx, winner)
	if err != nil {
		return err
	}

	return e.wallets.Atomic(ctx, []*wallet.Wallet{w}, func(m *wallet.Mutation) error {
		if amount > 0 {
			err := m.Deposit(w, amount)
			if err != nil {
				return err
			}
		}

		return e.rounds.Close(m.Context(), m.Tx(), roundID, token, &winner, amount, now)
	})
}
