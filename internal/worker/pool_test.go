package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsQueuedTasksBeforeStop(t *testing.T) {
	t.Parallel()

	p := NewPool(3, 16)

	var ran atomic.Int32

	for range 10 {
		if !p.TrySubmit(func() { ran.Add(1) }) {
			t.Fatalf("submit rejected")
		}
	}

	if err := p.Stop(t.Context()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if ran.Load() != 10 {
		t.Fatalf("expected 10 tasks to run, got %d", ran.Load())
	}

	if p.TrySubmit(func() {}) {
		t.Fatalf("TrySubmit after Stop must fail")
	}

	if err := p.Stop(t.Context()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestPool_TrySubmitFullQueue(t *testing.T) {
	t.Parallel()

	p := NewPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	if !p.TrySubmit(func() { close(started); <-release }) {
		t.Fatalf("first submit rejected")
	}

	<-started

	if !p.TrySubmit(func() {}) {
		t.Fatalf("queue slot should be free")
	}

	if p.TrySubmit(func() {}) {
		t.Fatalf("expected full queue to reject")
	}

	close(release)

	if err := p.Stop(t.Context()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestPool_StopWithFullQueue(t *testing.T) {
	t.Parallel()

	p := NewPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	p.TrySubmit(func() { close(started); <-release })
	<-started
	p.TrySubmit(func() {})

	// Stop must close the queue even though it is full and its worker is
	// busy; only the wait for running tasks is bounded by ctx.
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	if err := p.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	if p.TrySubmit(func() {}) {
		t.Fatalf("TrySubmit after Stop must fail")
	}

	close(release)

	if err := p.Stop(t.Context()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
