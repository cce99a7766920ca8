package lottery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fastprodman/coinledger/internal/metrics"
	"github.com/fastprodman/coinledger/internal/notify"
	"github.com/fastprodman/coinledger/internal/repos/accounts"
	"github.com/fastprodman/coinledger/internal/services/wallet"
)

// Robbery describes one completed robbery.
type Robbery struct {
	AccountID int64
	Amount    int64
	Balance   int64
}

// MaybeRob runs Rob with probability RobberyChance. A tick with no eligible
// account is skipped silently.
func (e *Engine) MaybeRob(ctx context.Context) (Robbery, bool, error) {
	if e.rnd.Float64() >= e.cfg.RobberyChance {
		return Robbery{}, false, nil
	}

	rob, err := e.Rob(ctx)
	if err != nil {
		if errors.Is(err, ErrNoVictim) {
			metrics.Robberies.WithLabelValues("skipped").Inc()

			return Robbery{}, false, nil
		}

		metrics.Robberies.WithLabelValues("failed").Inc()

		return Robbery{}, false, err
	}

	return rob, true, nil
}

// Rob takes between 1 and balance-1 from a random account whose balance is
// above the floor, so the victim always keeps at least 1.
func (e *Engine) Rob(ctx context.Context) (Robbery, error) {
	acc, err := e.accounts.RandomAbove(ctx, e.cfg.RobberyFloor)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return Robbery{}, ErrNoVictim
		}

		return Robbery{}, fmt.Errorf("pick victim: %w", err)
	}

	w, err := e.wallets.Get(ctx, acc.ID)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return Robbery{}, ErrNoVictim
		}

		return Robbery{}, fmt.Errorf("load victim: %w", err)
	}

	var rob Robbery

	err = e.wallets.Atomic(ctx, []*wallet.Wallet{w}, func(m *wallet.Mutation) error {
		bal := m.Balance(w)

		// The balance may have dropped since the victim was picked.
		if bal <= e.cfg.RobberyFloor || bal < 2 {
			return ErrNoVictim
		}

		amount := 1 + e.rnd.Int64N(bal-1)

		err := m.Withdraw(w, amount)
		if err != nil {
			return err
		}

		rob = Robbery{AccountID: w.ID(), Amount: amount, Balance: m.Balance(w)}

		return nil
	})
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return Robbery{}, ErrNoVictim
		}

		return Robbery{}, fmt.Errorf("rob %d: %w", acc.ID, err)
	}

	metrics.Robberies.WithLabelValues("robbed").Inc()
	slog.Info("robbery", "account_id", rob.AccountID, "amount", rob.Amount)

	e.notifier.Notify(ctx, notify.Notification{
		AccountID: rob.AccountID,
		Kind:      notify.KindRobbery,
		Amount:    rob.Amount,
		Message:   fmt.Sprintf("You were robbed! You lost %d", rob.Amount),
	})

	return rob, nil
}
