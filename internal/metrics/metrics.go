package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ledger
	LedgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by kind and result.",
		},
		[]string{"op", "result"}, // result: ok|rejected|failed
	)

	CachedWallets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wallet_cache_entries",
			Help: "Wallets currently held in the process cache.",
		},
	)

	// Lottery
	LotteryDraws = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_draws_total",
			Help: "Lottery draws by outcome.",
		},
		[]string{"outcome"}, // winner|empty|lost_claim|failed
	)

	LotteryEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_entries_total",
			Help: "Accepted lottery entries.",
		},
	)

	Robberies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robbery_events_total",
			Help: "Robbery ticks by outcome.",
		},
		[]string{"outcome"}, // robbed|skipped|failed
	)

	// Notifications
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by result.",
		},
		[]string{"kind", "result"}, // result: sent|dropped|failed
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	// HTTP
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Handler serves /metrics for the default registry.
var Handler = promhttp.Handler

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		LedgerOps,
		CachedWallets,
		LotteryDraws,
		LotteryEntries,
		Robberies,
		Notifications,
		WorkerQueueDepth,
		HTTPLatency,
	}
}

// Register adds every collector to reg. It fails if any is already
// registered there.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		err := reg.Register(c)
		if err != nil {
			return err
		}
	}

	return nil
}

// Result buckets an operation error for the result label.
func Result(err error, userError func(error) bool) string {
	switch {
	case err == nil:
		return "ok"
	case userError != nil && userError(err):
		return "rejected"
	default:
		return "failed"
	}
}
