package worker

import (
	"context"
	"sync"

	"github.com/fastprodman/coinledger/internal/metrics"
)

type Task func()

// Pool runs tasks on a fixed set of goroutines fed by a bounded queue.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task

	// mu guards closing jobs against concurrent sends.
	mu     sync.RWMutex
	closed bool
}

func NewPool(workers, queue int) *Pool {
	if workers < 1 {
		workers = 1
	}

	p := &Pool{jobs: make(chan Task, queue)}

	for range workers {
		p.wg.Add(1)

		go func() {
			defer p.wg.Done()

			for job := range p.jobs {
				metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
				job()
			}
		}()
	}

	return p
}

// TrySubmit queues f without blocking. It reports false when the queue is
// full or the pool is stopped. Senders never wait while holding mu, so Stop
// cannot be held up by a full queue.
func (p *Pool) TrySubmit(f Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}

	select {
	case p.jobs <- f:
		metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))

		return true
	default:
		return false
	}
}

// Stop rejects new tasks, then waits for queued ones to finish or for ctx.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()

	if !p.closed {
		p.closed = true
		close(p.jobs)
	}

	p.mu.Unlock()

	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
