package items

import (
	"context"
	"database/sql"

	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/repos/items"
)

var _ items.Items = (*itemsRepo)(nil)

type itemsRepo struct{ db *sql.DB }

func New(db *sql.DB) *itemsRepo {
	return &itemsRepo{db: db}
}

func (r *itemsRepo) LoadAll(ctx context.Context) ([]items.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price
		FROM items
		ORDER BY id
	`)
	if err != nil {
		return nil, pgutils.Wrap("load items", err)
	}
	defer rows.Close()

	var out []items.Item

	for rows.Next() {
		var it items.Item

		err = rows.Scan(&it.ID, &it.Name, &it.Price)
		if err != nil {
			return nil, pgutils.Wrap("scan item", err)
		}

		out = append(out, it)
	}

	err = rows.Err()
	if err != nil {
		return nil, pgutils.Wrap("iterate items", err)
	}

	return out, nil
}
