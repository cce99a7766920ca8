package memstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/coinledger/internal/repos/lottery"
)

var _ lottery.Rounds = roundsView{}

type roundsView struct{ s *Store }

func (s *Store) Rounds() lottery.Rounds { return roundsView{s} }

// find returns a pointer into the rounds slice; the caller holds the lock.
func (v roundsView) find(id int64) *lottery.Round {
	if id < 1 || id > int64(len(v.s.rounds)) {
		return nil
	}

	return &v.s.rounds[id-1]
}

func (v roundsView) Open(ctx context.Context, start, end time.Time) (lottery.Round, error) {
	return v.open(ctx, start, end, true)
}

func (v roundsView) ForceOpen(ctx context.Context, start, end time.Time) (lottery.Round, error) {
	return v.open(ctx, start, end, false)
}

func (v roundsView) open(ctx context.Context, start, end time.Time, exclusive bool) (lottery.Round, error) {
	if !end.After(start) {
		return lottery.Round{}, lottery.ErrInvalidRoundRange
	}

	var round lottery.Round

	err := v.s.WithTx(ctx, func(*sql.Tx) error {
		for _, r := range v.s.rounds {
			if exclusive && r.ClosedAt == nil && r.End.After(start) {
				return lottery.ErrRoundAlreadyOpen
			}
		}

		round = lottery.Round{
			ID:       int64(len(v.s.rounds)) + 1,
			Entrants: []int64{},
			Start:    start,
			End:      end,
		}
		v.s.rounds = append(v.s.rounds, round)

		return nil
	})
	if err != nil {
		return lottery.Round{}, err
	}

	return cloneRound(round), nil
}

func (v roundsView) Current(_ context.Context, now time.Time) (lottery.Round, error) {
	var round lottery.Round

	err := v.s.read("get current round", func() error {
		for i := len(v.s.rounds) - 1; i >= 0; i-- {
			r := v.s.rounds[i]
			if r.ClosedAt == nil && !r.Start.After(now) && now.Before(r.End) {
				round = cloneRound(r)

				return nil
			}
		}

		return lottery.ErrRoundNotOpen
	})

	return round, err
}

func (v roundsView) Get(_ context.Context, id int64) (lottery.Round, error) {
	var round lottery.Round

	err := v.s.read("get round", func() error {
		r := v.find(id)
		if r == nil {
			return lottery.ErrRoundNotFound
		}

		round = cloneRound(*r)

		return nil
	})

	return round, err
}

func (v roundsView) AddEntry(
	_ context.Context,
	_ *sql.Tx,
	roundID, accountID, fee int64,
	now time.Time,
) (lottery.Round, error) {
	r := v.find(roundID)
	if r == nil || r.ClosedAt != nil || r.ClaimToken.Valid || r.Start.After(now) || !now.Before(r.End) {
		return lottery.Round{}, lottery.ErrRoundNotOpen
	}

	r.Entrants = append(r.Entrants, accountID)
	r.Pool += fee

	return cloneRound(*r), nil
}

func (v roundsView) ListDue(_ context.Context, now time.Time) ([]int64, error) {
	var ids []int64

	err := v.s.read("list due rounds", func() error {
		for _, r := range v.s.rounds {
			if r.ClosedAt == nil && !r.End.After(now) {
				ids = append(ids, r.ID)
			}
		}

		return nil
	})

	return ids, err
}

func (v roundsView) Claim(
	_ context.Context,
	roundID int64,
	token uuid.UUID,
	now, staleBefore time.Time,
) (lottery.Round, error) {
	var round lottery.Round

	err := v.s.read("claim round", func() error {
		r := v.find(roundID)
		if r == nil || r.ClosedAt != nil || r.Winner != nil || r.End.After(now) {
			return lottery.ErrClaimLost
		}

		if r.ClaimToken.Valid && !r.ClaimedAt.Before(staleBefore) {
			return lottery.ErrClaimLost
		}

		at := now
		r.ClaimToken = uuid.NullUUID{UUID: token, Valid: true}
		r.ClaimedAt = &at
		round = cloneRound(*r)

		return nil
	})

	return round, err
}

func (v roundsView) Close(
	_ context.Context,
	_ *sql.Tx,
	roundID int64,
	token uuid.UUID,
	winner *int64,
	payout int64,
	now time.Time,
) error {
	r := v.find(roundID)
	if r == nil || r.ClosedAt != nil || !r.ClaimToken.Valid || r.ClaimToken.UUID != token {
		return lottery.ErrClaimLost
	}

	if winner != nil {
		w := *winner
		r.Winner = &w
	}

	at := now
	r.Payout = payout
	r.ClosedAt = &at

	return nil
}

func (v roundsView) Release(_ context.Context, roundID int64, token uuid.UUID) error {
	return v.s.read("release claim", func() error {
		r := v.find(roundID)
		if r == nil || r.ClosedAt != nil || !r.ClaimToken.Valid || r.ClaimToken.UUID != token {
			return nil
		}

		r.ClaimToken = uuid.NullUUID{}
		r.ClaimedAt = nil

		return nil
	})
}

func (v roundsView) ForceEnd(_ context.Context, roundID int64, now time.Time) error {
	return v.s.read("force end round", func() error {
		r := v.find(roundID)
		if r == nil {
			return lottery.ErrRoundNotFound
		}

		if r.ClosedAt != nil {
			return lottery.ErrRoundNotOpen
		}

		if now.Before(r.End) {
			r.End = now
		}

		if r.End.Before(r.Start) {
			r.End = r.Start
		}

		return nil
	})
}
