package inventory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/repos/accounts"
	"github.com/fastprodman/coinledger/internal/repos/inventory"
)

var _ inventory.Inventory = (*inventoryRepo)(nil)

type inventoryRepo struct{ db *sql.DB }

func New(db *sql.DB) *inventoryRepo {
	return &inventoryRepo{db: db}
}

func (r *inventoryRepo) List(ctx context.Context, accountID int64) (map[int64]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, amount
		FROM inventory
		WHERE account_id = $1
		  AND amount > 0
	`, accountID)
	if err != nil {
		return nil, pgutils.Wrap("list inventory", err)
	}
	defer rows.Close()

	out := make(map[int64]int64)

	for rows.Next() {
		var itemID, amount int64

		err = rows.Scan(&itemID, &amount)
		if err != nil {
			return nil, pgutils.Wrap("scan inventory", err)
		}

		out[itemID] = amount
	}

	err = rows.Err()
	if err != nil {
		return nil, pgutils.Wrap("iterate inventory", err)
	}

	return out, nil
}

func (r *inventoryRepo) Adjust(ctx context.Context, tx *sql.Tx, accountID, itemID, delta int64) (int64, error) {
	switch {
	case delta > 0:
		return r.add(ctx, tx, accountID, itemID, delta)
	case delta < 0:
		return r.remove(ctx, tx, accountID, itemID, -delta)
	default:
		var amount int64

		err := tx.QueryRowContext(ctx, `
			SELECT amount FROM inventory WHERE account_id = $1 AND item_id = $2
		`, accountID, itemID).Scan(&amount)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, pgutils.Wrap("get inventory", err)
		}

		return amount, nil
	}
}

func (r *inventoryRepo) add(ctx context.Context, tx *sql.Tx, accountID, itemID, amount int64) (int64, error) {
	var total int64

	err := tx.QueryRowContext(ctx, `
		INSERT INTO inventory (account_id, item_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, item_id)
		DO UPDATE SET amount = inventory.amount + EXCLUDED.amount
		RETURNING amount
	`, accountID, itemID, amount).Scan(&total)
	if err != nil {
		if pgutils.IsForeignKeyViolation(err) {
			return 0, accounts.ErrAccountNotFound
		}

		return 0, pgutils.Wrap("add inventory", err)
	}

	return total, nil
}

// remove decrements under a guard and drops the row once it reaches zero.
func (r *inventoryRepo) remove(ctx context.Context, tx *sql.Tx, accountID, itemID, amount int64) (int64, error) {
	var left int64

	err := tx.QueryRowContext(ctx, `
		UPDATE inventory
		SET amount = amount - $3
		WHERE account_id = $1
		  AND item_id = $2
		  AND amount >= $3
		RETURNING amount
	`, accountID, itemID, amount).Scan(&left)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, inventory.ErrInsufficientItems
		}

		return 0, pgutils.Wrap("remove inventory", err)
	}

	if left == 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM inventory
			WHERE account_id = $1
			  AND item_id = $2
			  AND amount = 0
		`, accountID, itemID)
		if err != nil {
			return 0, pgutils.Wrap("prune inventory", err)
		}
	}

	return left, nil
}
