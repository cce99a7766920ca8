package pgutils

import (
	"context"
	"database/sql"
	"fmt"
)

// Transactor opens short store transactions. Repositories take the *sql.Tx it
// hands to fn; test doubles may pass nil and model atomicity themselves.
type Transactor interface {
	WithTx(ctx context.Context, fn func(*sql.Tx) error) error
}

// DBTransactor is the Postgres-backed Transactor.
type DBTransactor struct {
	DB *sql.DB
}

func NewTransactor(db *sql.DB) DBTransactor {
	return DBTransactor{DB: db}
}

func (t DBTransactor) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return WithTx(ctx, t.DB, fn)
}

// WithTx runs fn inside a transaction.
// It commits if fn returns nil, otherwise it rolls back.
func WithTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil) // default isolation level
	if err != nil {
		return Wrap("begin tx", err)
	}

	err = fn(tx)
	if err != nil {
		rbErr := tx.Rollback()
		if rbErr != nil {
			return fmt.Errorf("rollback after fn error: %w (fn err: %w)", Wrap("rollback", rbErr), err)
		}

		return err
	}

	err = tx.Commit()
	if err != nil {
		return Wrap("commit tx", err)
	}

	return nil
}
