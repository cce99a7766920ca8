package inventory

import (
	"context"
	"database/sql"
	"errors"
)

var ErrInsufficientItems = errors.New("insufficient items")

// Inventory stores per-account item counts. Rows with a zero count are not
// kept, so List never reports zeros.
type Inventory interface {
	List(ctx context.Context, accountID int64) (map[int64]int64, error)
	// Adjust adds delta (which may be negative) to the count and returns the
	// new count. A negative delta larger than the holding fails with
	// ErrInsufficientItems and changes nothing.
	Adjust(ctx context.Context, tx *sql.Tx, accountID, itemID, delta int64) (int64, error)
}
