// Package notify delivers asynchronous messages to accounts, outside any
// request/response cycle.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/coinledger/internal/metrics"
	"github.com/fastprodman/coinledger/internal/worker"
)

type Kind string

const (
	KindLotteryWin Kind = "lottery_win"
	KindRobbery    Kind = "robbery"
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	AccountID int64     `json:"account_id"`
	Kind      Kind      `json:"kind"`
	Amount    int64     `json:"amount"`
	RoundID   int64     `json:"round_id,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier hands a notification off for delivery. It never blocks on the
// delivery itself.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Sink performs the delivery.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// Dispatcher queues notifications on a worker pool. Notifications are
// dropped, with a warning, when the queue is full.
type Dispatcher struct {
	pool    *worker.Pool
	sink    Sink
	timeout time.Duration
	now     func() time.Time
}

func NewDispatcher(pool *worker.Pool, sink Sink, timeout time.Duration) *Dispatcher {
	return &Dispatcher{pool: pool, sink: sink, timeout: timeout, now: time.Now}
}

func (d *Dispatcher) Notify(_ context.Context, n Notification) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}

	queued := d.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.sink.Deliver(ctx, n)
		if err != nil {
			metrics.Notifications.WithLabelValues(string(n.Kind), "failed").Inc()
			slog.Warn("deliver notification", "id", n.ID, "account_id", n.AccountID, "error", err)

			return
		}

		metrics.Notifications.WithLabelValues(string(n.Kind), "sent").Inc()
	})
	if !queued {
		metrics.Notifications.WithLabelValues(string(n.Kind), "dropped").Inc()
		slog.Warn("notification dropped", "id", n.ID, "account_id", n.AccountID, "kind", n.Kind)
	}
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.InfoContext(ctx, "notification",
		"id", n.ID,
		"account_id", n.AccountID,
		"kind", n.Kind,
		"amount", n.Amount,
		"round_id", n.RoundID,
		"message", n.Message,
	)

	return nil
}
