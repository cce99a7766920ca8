package lottery

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRoundNotFound     = errors.New("lottery round not found")
	ErrRoundNotOpen      = errors.New("no open lottery round")
	ErrRoundAlreadyOpen  = errors.New("a lottery round is already open")
	ErrClaimLost         = errors.New("lottery round claimed elsewhere")
	ErrInvalidRoundRange = errors.New("round must end after it starts")
)

type State int

const (
	StateOpen State = iota
	// StateDue is a round past its end time that has not been drawn yet.
	StateDue
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDue:
		return "due"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Round struct {
	ID       int64
	Pool     int64
	Entrants []int64
	Start    time.Time
	End      time.Time
	Winner   *int64
	Payout   int64

	ClaimToken uuid.NullUUID
	ClaimedAt  *time.Time
	ClosedAt   *time.Time
}

func (r Round) State(now time.Time) State {
	switch {
	case r.ClosedAt != nil:
		return StateClosed
	case now.Before(r.End):
		return StateOpen
	default:
		return StateDue
	}
}

// Rounds persists lottery rounds.
//
// The draw is guarded by a claim: Claim stamps an undrawn due round with a
// token, and Close only succeeds while that token is still in place. A claim
// older than the staleBefore cutoff may be taken over, so a draw abandoned
// by a crashed tick is retried.
type Rounds interface {
	// Open creates a round unless one is already open.
	Open(ctx context.Context, start, end time.Time) (Round, error)
	// ForceOpen creates a round even while another is open. The newest
	// open round is the one Current returns.
	ForceOpen(ctx context.Context, start, end time.Time) (Round, error)
	Current(ctx context.Context, now time.Time) (Round, error)
	Get(ctx context.Context, id int64) (Round, error)
	// AddEntry appends accountID to the entrants and adds fee to the pool,
	// provided the round is open and unclaimed at now.
	AddEntry(ctx context.Context, tx *sql.Tx, roundID, accountID, fee int64, now time.Time) (Round, error)
	ListDue(ctx context.Context, now time.Time) ([]int64, error)
	Claim(ctx context.Context, roundID int64, token uuid.UUID, now, staleBefore time.Time) (Round, error)
	Close(ctx context.Context, tx *sql.Tx, roundID int64, token uuid.UUID, winner *int64, payout int64, now time.Time) error
	// Release drops a claim still held by token so the next scan can draw
	// the round. It is a no-op once the claim was taken over or closed.
	Release(ctx context.Context, roundID int64, token uuid.UUID) error
	// ForceEnd moves an undrawn round's end time to now.
	ForceEnd(ctx context.Context, roundID int64, now time.Time) error
}
