package accounts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/repos/accounts"
)

func (r *accountsRepo) IncreaseBalance(ctx context.Context, tx *sql.Tx, id int64, amount int64) (int64, error) {
	var balance int64

	err := tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance + $2
		WHERE id = $1
		RETURNING balance
	`, id, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, accounts.ErrAccountNotFound
		}

		return 0, pgutils.Wrap("increase balance", err)
	}

	return balance, nil
}

// DecreaseBalance subtracts amount only if the row can cover it. When no row
// is updated it tells a missing account apart from a short balance.
func (r *accountsRepo) DecreaseBalance(ctx context.Context, tx *sql.Tx, id int64, amount int64) (int64, error) {
	var balance int64

	err := tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance - $2
		WHERE id = $1
		  AND balance >= $2
		RETURNING balance
	`, id, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return 0, pgutils.Wrap("decrease balance", err)
	}

	var exists bool

	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return 0, pgutils.Wrap("check exists", err)
	}

	if !exists {
		return 0, accounts.ErrAccountNotFound
	}

	return 0, accounts.ErrInsufficientFunds
}
