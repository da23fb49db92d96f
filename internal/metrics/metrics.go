package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Classifier call latency (seconds)
	ClassifierCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "phish_scanner_classifier_call_duration_seconds",
			Help:    "Classifier call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"provider", "status"},
	)

	// Scanned items by label
	ScanResultCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phish_scanner_scan_results_total",
			Help: "Total number of scan results by predicted label",
		},
		[]string{"label"},
	)

	// Token refreshes
	TokenRefreshCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phish_scanner_token_refresh_total",
			Help: "Total number of token refresh attempts",
		},
		[]string{"slot", "outcome"}, // outcome: success, failed
	)

	// Mailbox fetches
	MailFetchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phish_scanner_mail_fetch_total",
			Help: "Total number of mailbox fetches",
		},
		[]string{"outcome"}, // outcome: success, retried, reauthorize, failed
	)

	// Backend actions (server side)
	BackendActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "phish_scanner_backend_action_duration_seconds",
			Help:    "Backend action duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"action", "status"},
	)

	// Messages received by the SMTP relay source
	RelayMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phish_scanner_relay_messages_total",
			Help: "Total number of messages received by the relay source",
		},
		[]string{"status"}, // status: accepted, rejected
	)
)

// RecordClassifierCall records the duration of one classifier call
func RecordClassifierCall(provider, status string, duration time.Duration) {
	ClassifierCallDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
}

// IncrementScanResult counts one scan result
func IncrementScanResult(label string) {
	ScanResultCount.WithLabelValues(label).Inc()
}

// IncrementTokenRefresh counts one refresh attempt
func IncrementTokenRefresh(slot, outcome string) {
	TokenRefreshCount.WithLabelValues(slot, outcome).Inc()
}

// IncrementMailFetch counts one mailbox fetch outcome
func IncrementMailFetch(outcome string) {
	MailFetchCount.WithLabelValues(outcome).Inc()
}

// RecordBackendAction records the duration of one backend action
func RecordBackendAction(action, status string, duration time.Duration) {
	BackendActionDuration.WithLabelValues(action, status).Observe(duration.Seconds())
}

// IncrementRelayMessage counts one relayed message
func IncrementRelayMessage(status string) {
	RelayMessageCount.WithLabelValues(status).Inc()
}
