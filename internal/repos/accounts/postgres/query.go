package accounts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/repos/accounts"
)

// Top lists accounts by balance, richest first. A non-empty scope restricts
// the listing to those account ids.
func (r *accountsRepo) Top(ctx context.Context, limit int, scope []int64) ([]accounts.Account, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if len(scope) == 0 {
		rows, err = r.db.QueryContext(ctx, `
			SELECT id, balance
			FROM accounts
			ORDER BY balance DESC, id ASC
			LIMIT $1
		`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT id, balance
			FROM accounts
			WHERE id = ANY($2)
			ORDER BY balance DESC, id ASC
			LIMIT $1
		`, limit, scope)
	}

	if err != nil {
		return nil, pgutils.Wrap("list top accounts", err)
	}
	defer rows.Close()

	out := make([]accounts.Account, 0, limit)

	for rows.Next() {
		var acc accounts.Account

		err = rows.Scan(&acc.ID, &acc.Balance)
		if err != nil {
			return nil, pgutils.Wrap("scan account", err)
		}

		out = append(out, acc)
	}

	err = rows.Err()
	if err != nil {
		return nil, pgutils.Wrap("iterate accounts", err)
	}

	return out, nil
}

// RandomAbove picks one account whose balance is strictly greater than floor.
func (r *accountsRepo) RandomAbove(ctx context.Context, floor int64) (accounts.Account, error) {
	var acc accounts.Account

	err := r.db.QueryRowContext(ctx, `
		SELECT id, balance
		FROM accounts
		WHERE balance > $1
		ORDER BY random()
		LIMIT 1
	`, floor).Scan(&acc.ID, &acc.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return accounts.Account{}, accounts.ErrAccountNotFound
		}

		return accounts.Account{}, pgutils.Wrap("pick random account", err)
	}

	return acc, nil
}
