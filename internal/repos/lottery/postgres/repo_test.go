package lottery

import (
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/coinledger/internal/infra/pgtestutil"
	"github.com/fastprodman/coinledger/internal/infra/pgutils"
	"github.com/fastprodman/coinledger/internal/repos/lottery"
)

func TestRounds_OpenEnterAndClose(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := t.Context()
	now := time.Now().UTC().Truncate(time.Microsecond)

	round, err := repo.Open(ctx, now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_, err = repo.Open(ctx, now, now.Add(time.Hour))
	if !errors.Is(err, lottery.ErrRoundAlreadyOpen) {
		t.Fatalf("expected ErrRoundAlreadyOpen, got %v", err)
	}

	for _, acct := range []int64{3, 4, 3} {
		err = pgutils.WithTx(ctx, db, func(tx *sql.Tx) error {
			_, err := repo.AddEntry(ctx, tx, round.ID, acct, 25, now.Add(time.Minute))

			return err
		})
		if err != nil {
			t.Fatalf("add entry %d: %v", acct, err)
		}
	}

	cur, err := repo.Current(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("current: %v", err)
	}

	if cur.Pool != 75 || len(cur.Entrants) != 3 || cur.Entrants[2] != 3 {
		t.Fatalf("unexpected round state: %+v", cur)
	}

	_, err = repo.Claim(ctx, round.ID, uuid.New(), now.Add(time.Minute), now)
	if !errors.Is(err, lottery.ErrClaimLost) {
		t.Fatalf("claim before end must fail, got %v", err)
	}

	if err = repo.ForceEnd(ctx, round.ID, now.Add(2*time.Minute)); err != nil {
		t.Fatalf("force end: %v", err)
	}

	due, err := repo.ListDue(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("list due: %v", err)
	}

	if len(due) != 1 || due[0] != round.ID {
		t.Fatalf("expected round %d due, got %v", round.ID, due)
	}

	token := uuid.New()

	claimed, err := repo.Claim(ctx, round.ID, token, now.Add(2*time.Minute), now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	if !claimed.ClaimToken.Valid || claimed.ClaimToken.UUID != token {
		t.Fatalf("claim token not returned: %+v", claimed.ClaimToken)
	}

	err = pgutils.WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := repo.AddEntry(ctx, tx, round.ID, 5, 25, now.Add(2*time.Minute))

		return err
	})
	if !errors.Is(err, lottery.ErrRoundNotOpen) {
		t.Fatalf("entry into claimed round must fail, got %v", err)
	}

	winner := int64(4)

	err = pgutils.WithTx(ctx, db, func(tx *sql.Tx) error {
		return repo.Close(ctx, tx, round.ID, uuid.New(), &winner, 75, now.Add(2*time.Minute))
	})
	if !errors.Is(err, lottery.ErrClaimLost) {
		t.Fatalf("close with foreign token must fail, got %v", err)
	}

	err = pgutils.WithTx(ctx, db, func(tx *sql.Tx) error {
		return repo.Close(ctx, tx, round.ID, token, &winner, 75, now.Add(2*time.Minute))
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := repo.Get(ctx, round.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.Winner == nil || *got.Winner != 4 || got.Payout != 75 || got.State(now) != lottery.StateClosed {
		t.Fatalf("unexpected closed round: %+v", got)
	}

	if err = repo.ForceEnd(ctx, round.ID, now); !errors.Is(err, lottery.ErrRoundNotOpen) {
		t.Fatalf("force end on closed round: %v", err)
	}

	if _, err = repo.Get(ctx, 9_999); !errors.Is(err, lottery.ErrRoundNotFound) {
		t.Fatalf("expected ErrRoundNotFound, got %v", err)
	}
}

func TestRounds_ClaimIsExclusive(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := t.Context()
	now := time.Now().UTC()

	round, err := repo.Open(ctx, now.Add(-time.Hour), now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := repo.Claim(ctx, round.ID, uuid.New(), now, now.Add(-5*time.Minute))

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				wins++
			case errors.Is(err, lottery.ErrClaimLost):
			default:
				t.Errorf("claim: %v", err)
			}
		}()
	}

	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one claim to win, got %d", wins)
	}

	// A claim older than the stale cutoff can be taken over.
	_, err = repo.Claim(ctx, round.ID, uuid.New(), now.Add(time.Hour), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("stale claim takeover: %v", err)
	}
}

func TestRounds_ForceOpenBypassesGuard(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := t.Context()
	now := time.Now().UTC().Truncate(time.Microsecond)

	first, err := repo.Open(ctx, now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	second, err := repo.ForceOpen(ctx, now, now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("force open: %v", err)
	}

	if second.ID <= first.ID {
		t.Fatalf("expected a newer round, got %d after %d", second.ID, first.ID)
	}

	cur, err := repo.Current(ctx, now)
	if err != nil {
		t.Fatalf("current: %v", err)
	}

	if cur.ID != second.ID {
		t.Fatalf("expected current round %d, got %d", second.ID, cur.ID)
	}

	if _, err = repo.Open(ctx, now, now.Add(time.Hour)); !errors.Is(err, lottery.ErrRoundAlreadyOpen) {
		t.Fatalf("expected ErrRoundAlreadyOpen, got %v", err)
	}
}

func TestRounds_ReleaseLetsNextScanClaim(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := t.Context()
	now := time.Now().UTC()
	staleBefore := now.Add(-5 * time.Minute)

	round, err := repo.Open(ctx, now.Add(-time.Hour), now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	token := uuid.New()

	if _, err = repo.Claim(ctx, round.ID, token, now, staleBefore); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Someone else's token leaves the claim in place.
	if err = repo.Release(ctx, round.ID, uuid.New()); err != nil {
		t.Fatalf("release foreign token: %v", err)
	}

	if _, err = repo.Claim(ctx, round.ID, uuid.New(), now, staleBefore); !errors.Is(err, lottery.ErrClaimLost) {
		t.Fatalf("expected ErrClaimLost, got %v", err)
	}

	if err = repo.Release(ctx, round.ID, token); err != nil {
		t.Fatalf("release: %v", err)
	}

	got, err := repo.Get(ctx, round.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.ClaimToken.Valid {
		t.Fatalf("claim still held: %+v", got.ClaimToken)
	}

	if _, err = repo.Claim(ctx, round.ID, uuid.New(), now, staleBefore); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}
