package lottery

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fastprodman/coinledger/internal/repos/lottery"
)

var _ lottery.Rounds = (*roundsRepo)(nil)

// Arbitrary key for pg_advisory_xact_lock around round creation.
const openLockKey = 7_240_001

const roundColumns = `
	round_id, pool_balance, entrant_ids, start_time, end_time,
	winner, payout, claim_token, claimed_at, closed_at
`

type roundsRepo struct{ db *sql.DB }

func New(db *sql.DB) *roundsRepo {
	return &roundsRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (lottery.Round, error) {
	var (
		r         lottery.Round
		winner    sql.NullInt64
		payout    sql.NullInt64
		claimedAt sql.NullTime
		closedAt  sql.NullTime
	)

	// pgtype.Map is not safe for concurrent use.
	types := pgtype.NewMap()

	err := row.Scan(
		&r.ID,
		&r.Pool,
		types.SQLScanner(&r.Entrants),
		&r.Start,
		&r.End,
		&winner,
		&payout,
		&r.ClaimToken,
		&claimedAt,
		&closedAt,
	)
	if err != nil {
		return lottery.Round{}, err
	}

	if winner.Valid {
		r.Winner = &winner.Int64
	}

	if payout.Valid {
		r.Payout = payout.Int64
	}

	if claimedAt.Valid {
		r.ClaimedAt = &claimedAt.Time
	}

	if closedAt.Valid {
		r.ClosedAt = &closedAt.Time
	}

	if r.Entrants == nil {
		r.Entrants = []int64{}
	}

	return r, nil
}
