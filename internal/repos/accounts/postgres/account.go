package accounts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/repos/accounts"
)

// Create inserts a zero-balance account. It reports false, without error,
// when the account already exists.
func (r *accountsRepo) Create(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, balance)
		VALUES ($1, 0)
		ON CONFLICT (id) DO NOTHING
	`, id)
	if err != nil {
		return false, pgutils.Wrap("create account", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, pgutils.Wrap("rows affected", err)
	}

	return affected == 1, nil
}

// Delete removes the account; inventory rows go with it (ON DELETE CASCADE).
func (r *accountsRepo) Delete(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `
		DELETE FROM accounts
		WHERE id = $1
	`, id)
	if err != nil {
		return pgutils.Wrap("delete account", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return pgutils.Wrap("rows affected", err)
	}

	if affected == 0 {
		return accounts.ErrAccountNotFound
	}

	return nil
}

func (r *accountsRepo) Get(ctx context.Context, id int64) (accounts.Account, error) {
	acc := accounts.Account{ID: id}

	err := r.db.QueryRowContext(ctx, `
		SELECT balance
		FROM accounts
		WHERE id = $1
	`, id).Scan(&acc.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return accounts.Account{}, accounts.ErrAccountNotFound
		}

		return accounts.Account{}, pgutils.Wrap("get account", err)
	}

	return acc, nil
}
