package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	WebhookOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_webhook_outcomes_total",
			Help: "Provider callbacks by terminal outcome",
		},
		[]string{"provider", "outcome"},
	)

	LedgerCredited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_ledger_credited_minor_units_total",
			Help: "Minor units credited to user balances",
		},
		[]string{"category"},
	)

	TransactionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_transaction_transitions_total",
			Help: "Transaction state transitions",
		},
		[]string{"tx_type", "status"},
	)

	PayoutLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rewards_payout_request_seconds",
			Help:    "Latency of payout provider calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)

	CatalogCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_catalog_cache_total",
			Help: "Task catalog cache lookups",
		},
		[]string{"result"},
	)

	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_tasks_processed_total",
			Help: "Background tasks handled by the worker",
		},
		[]string{"task_type", "result"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rewards_task_duration_seconds",
			Help:    "Background task handler latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type"},
	)
)
