package lottery

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/repos/lottery"
)

func (r *roundsRepo) ListDue(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT round_id
		FROM lottery_round
		WHERE closed_at IS NULL
		  AND end_time <= $1
		ORDER BY round_id
	`, now)
	if err != nil {
		return nil, pgutils.Wrap("list due rounds", err)
	}
	defer rows.Close()

	var ids []int64

	for rows.Next() {
		var id int64

		err = rows.Scan(&id)
		if err != nil {
			return nil, pgutils.Wrap("scan round id", err)
		}

		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, pgutils.Wrap("iterate due rounds", err)
	}

	return ids, nil
}

// Claim is a single conditional update, so of two overlapping scans only one
// gets a row back.
func (r *roundsRepo) Claim(
	ctx context.Context,
	roundID int64,
	token uuid.UUID,
	now, staleBefore time.Time,
) (lottery.Round, error) {
	round, err := scanRound(r.db.QueryRowContext(ctx, `
		UPDATE lottery_round
		SET claim_token = $2,
		    claimed_at  = $3
		WHERE round_id = $1
		  AND closed_at IS NULL
		  AND winner IS NULL
		  AND end_time <= $3
		  AND (claim_token IS NULL OR claimed_at < $4)
		RETURNING `+roundColumns, roundID, token, now, staleBefore))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lottery.Round{}, lottery.ErrClaimLost
		}

		return lottery.Round{}, pgutils.Wrap("claim round", err)
	}

	return round, nil
}

func (r *roundsRepo) Close(
	ctx context.Context,
	tx *sql.Tx,
	roundID int64,
	token uuid.UUID,
	winner *int64,
	payout int64,
	now time.Time,
) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE lottery_round
		SET winner    = $3,
		    payout    = $4,
		    closed_at = $5
		WHERE round_id = $1
		  AND claim_token = $2
		  AND closed_at IS NULL
	`, roundID, token, winner, payout, now)
	if err != nil {
		return pgutils.Wrap("close round", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return pgutils.Wrap("rows affected", err)
	}

	if affected == 0 {
		return lottery.ErrClaimLost
	}

	return nil
}

func (r *roundsRepo) Release(ctx context.Context, roundID int64, token uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE lottery_round
		SET claim_token = NULL,
		    claimed_at  = NULL
		WHERE round_id = $1
		  AND claim_token = $2
		  AND closed_at IS NULL
	`, roundID, token)
	if err != nil {
		return pgutils.Wrap("release claim", err)
	}

	return nil
}
