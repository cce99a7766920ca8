package shutdownqueue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddNilTaskIsNoop(t *testing.T) {
	t.Parallel()

	q := New()
	q.Add("nil", nil)

	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d tasks", q.Len())
	}

	err := q.Shutdown(t.Context())
	if err != nil {
		t.Fatalf("expected nil after adding nil task; got %v", err)
	}
}

func TestLIFOOrder(t *testing.T) {
	t.Parallel()

	q := New()

	var (
		orderMu sync.Mutex
		order   []string
	)

	makeTask := func(name string) Task {
		return func(ctx context.Context) error {
			orderMu.Lock()
			order = append(order, name)
			orderMu.Unlock()

			return nil
		}
	}

	q.Add("db", makeTask("db"))
	q.Add("scheduler", makeTask("scheduler"))
	q.Add("http", makeTask("http"))

	err := q.Shutdown(t.Context())
	if err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	want := []string{"http", "scheduler", "db"}
	if len(order) != len(want) {
		t.Fatalf("order len mismatch: got %v, want %v", order, want)
	}

	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v, want %v", i, order, want)
		}
	}
}

func TestPanicRecoveryTaggedAndContinues(t *testing.T) {
	t.Parallel()

	q := New()

	var ranAfterPanic atomic.Bool

	q.Add("after", func(ctx context.Context) error {
		ranAfterPanic.Store(true)

		return nil
	})
	q.Add("notifier", func(ctx context.Context) error {
		panic("boom")
	})

	err := q.Shutdown(t.Context())
	if err == nil {
		t.Fatalf("expected aggregated error with panic; got nil")
	}

	if !strings.Contains(err.Error(), `panic in shutdown task "notifier": boom`) {
		t.Fatalf("expected tagged panic message in error; got: %q", err.Error())
	}

	if !ranAfterPanic.Load() {
		t.Fatalf("expected tasks registered before the panicking one to still run")
	}
}

func TestAggregatedErrors(t *testing.T) {
	t.Parallel()

	q := New()
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	q.Add("a", func(ctx context.Context) error { return errA })
	q.Add("b", func(ctx context.Context) error { return errB })

	err := q.Shutdown(t.Context())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both task errors, got %v", err)
	}

	if !strings.Contains(err.Error(), "shutdown a:") {
		t.Fatalf("expected task name in error, got %q", err.Error())
	}
}

func TestEarlyCancelStopsDrain(t *testing.T) {
	t.Parallel()

	q := New()

	var ran atomic.Int32

	q.Add("never", func(ctx context.Context) error {
		ran.Add(1)

		return nil
	})

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	q.Add("slow", func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	})

	err := q.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	if ran.Load() != 0 {
		t.Fatalf("expected remaining tasks to be skipped after cancel")
	}
}

func TestShutdownIdempotentAndAddAfterClose(t *testing.T) {
	t.Parallel()

	q := New()

	var runs atomic.Int32

	q.Add("once", func(ctx context.Context) error {
		runs.Add(1)

		return nil
	})

	if err := q.Shutdown(t.Context()); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}

	q.Add("late", func(ctx context.Context) error {
		runs.Add(1)

		return nil
	})

	if err := q.Shutdown(t.Context()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}

	if runs.Load() != 1 {
		t.Fatalf("expected exactly one run, got %d", runs.Load())
	}
}
