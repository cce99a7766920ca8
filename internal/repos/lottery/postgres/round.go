package lottery

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/repos/lottery"
)

func (r *roundsRepo) Open(ctx context.Context, start, end time.Time) (lottery.Round, error) {
	return r.open(ctx, start, end, true)
}

func (r *roundsRepo) ForceOpen(ctx context.Context, start, end time.Time) (lottery.Round, error) {
	return r.open(ctx, start, end, false)
}

func (r *roundsRepo) open(ctx context.Context, start, end time.Time, exclusive bool) (lottery.Round, error) {
	if !end.After(start) {
		return lottery.Round{}, lottery.ErrInvalidRoundRange
	}

	var round lottery.Round

	err := pgutils.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		// Serializes concurrent openers so the "none open" check holds.
		_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, openLockKey)
		if err != nil {
			return pgutils.Wrap("lock round open", err)
		}

		if exclusive {
			var open bool

			err = tx.QueryRowContext(ctx, `
				SELECT EXISTS(
					SELECT 1 FROM lottery_round
					WHERE closed_at IS NULL
					  AND end_time > $1
				)
			`, start).Scan(&open)
			if err != nil {
				return pgutils.Wrap("check open round", err)
			}

			if open {
				return lottery.ErrRoundAlreadyOpen
			}
		}

		round, err = scanRound(tx.QueryRowContext(ctx, `
			INSERT INTO lottery_round (start_time, end_time)
			VALUES ($1, $2)
			RETURNING `+roundColumns, start, end))
		if err != nil {
			return pgutils.Wrap("insert round", err)
		}

		return nil
	})
	if err != nil {
		return lottery.Round{}, err
	}

	return round, nil
}

func (r *roundsRepo) Current(ctx context.Context, now time.Time) (lottery.Round, error) {
	round, err := scanRound(r.db.QueryRowContext(ctx, `
		SELECT `+roundColumns+`
		FROM lottery_round
		WHERE closed_at IS NULL
		  AND start_time <= $1
		  AND end_time > $1
		ORDER BY round_id DESC
		LIMIT 1
	`, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lottery.Round{}, lottery.ErrRoundNotOpen
		}

		return lottery.Round{}, pgutils.Wrap("get current round", err)
	}

	return round, nil
}

func (r *roundsRepo) Get(ctx context.Context, id int64) (lottery.Round, error) {
	round, err := scanRound(r.db.QueryRowContext(ctx, `
		SELECT `+roundColumns+`
		FROM lottery_round
		WHERE round_id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lottery.Round{}, lottery.ErrRoundNotFound
		}

		return lottery.Round{}, pgutils.Wrap("get round", err)
	}

	return round, nil
}

func (r *roundsRepo) AddEntry(
	ctx context.Context,
	tx *sql.Tx,
	roundID, accountID, fee int64,
	now time.Time,
) (lottery.Round, error) {
	round, err := scanRound(tx.QueryRowContext(ctx, `
		UPDATE lottery_round
		SET entrant_ids  = array_append(entrant_ids, $2::BIGINT),
		    pool_balance = pool_balance + $3
		WHERE round_id = $1
		  AND closed_at IS NULL
		  AND claim_token IS NULL
		  AND start_time <= $4
		  AND end_time > $4
		RETURNING `+roundColumns, roundID, accountID, fee, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lottery.Round{}, lottery.ErrRoundNotOpen
		}

		return lottery.Round{}, pgutils.Wrap("add lottery entry", err)
	}

	return round, nil
}

// ForceEnd never moves the end time before the start, and it leaves rounds
// that are already due untouched.
func (r *roundsRepo) ForceEnd(ctx context.Context, roundID int64, now time.Time) error {
	var closed bool

	err := r.db.QueryRowContext(ctx, `
		UPDATE lottery_round
		SET end_time = GREATEST(start_time, LEAST(end_time, $2))
		WHERE round_id = $1
		RETURNING closed_at IS NOT NULL
	`, roundID, now).Scan(&closed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lottery.ErrRoundNotFound
		}

		return pgutils.Wrap("force end round", err)
	}

	if closed {
		return lottery.ErrRoundNotOpen
	}

	return nil
}
