package accounts

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

type Account struct {
	ID      int64
	Balance int64
}

// Accounts is the balance store. Methods taking a *sql.Tx run inside the
// caller's transaction; the rest use their own connection.
//
// IncreaseBalance and DecreaseBalance are single atomic update-and-return
// statements: the returned value is the balance the row holds after the
// update, never one computed by the caller.
type Accounts interface {
	Create(ctx context.Context, tx *sql.Tx, id int64) (bool, error)
	Delete(ctx context.Context, tx *sql.Tx, id int64) error
	Get(ctx context.Context, id int64) (Account, error)
	IncreaseBalance(ctx context.Context, tx *sql.Tx, id int64, amount int64) (int64, error)
	DecreaseBalance(ctx context.Context, tx *sql.Tx, id int64, amount int64) (int64, error)
	Top(ctx context.Context, limit int, scope []int64) ([]Account, error)
	RandomAbove(ctx context.Context, floor int64) (Account, error)
}
