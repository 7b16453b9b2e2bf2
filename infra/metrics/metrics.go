// Package metrics exposes the Prometheus collectors of the gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bankRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpos_bank_requests_total",
		Help: "Outbound bank requests by provider, operation and outcome",
	}, []string{
		"provider",
		"operation",
		"outcome", // ok, http_error, network_error
	})

	bankRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "vpos_bank_request_duration_seconds",
		Help: "Latency of outbound bank requests",
		// bank calls time out at 30s by default
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"provider",
		"operation",
	})

	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpos_transactions_total",
		Help: "Transactions reaching a state, by operation",
	}, []string{
		"provider",
		"operation", // payment, pre_auth, post_auth, refund, cancel
		"status",
		"error_kind",
	})

	binLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpos_bin_lookups_total",
		Help: "BIN resolutions by the source that answered",
	}, []string{
		"source", // cache, store, <external name>, heuristic
	})

	callbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpos_callbacks_total",
		Help: "3-D Secure callbacks received, split by whether they were processed or acknowledged as duplicates",
	}, []string{
		"provider",
		"result", // processed, duplicate
	})
)

// RecordBankRequest records one outbound bank call
func RecordBankRequest(provider, operation, outcome string, elapsed time.Duration) {
	bankRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	bankRequestDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// RecordTransaction records a transaction state change
func RecordTransaction(provider, operation, status, errorKind string) {
	transactionsTotal.WithLabelValues(provider, operation, status, errorKind).Inc()
}

// RecordBinLookup records which BIN source answered
func RecordBinLookup(source string) {
	binLookupsTotal.WithLabelValues(source).Inc()
}

// RecordCallback records a 3-D callback delivery
func RecordCallback(provider string, duplicate bool) {
	result := "processed"
	if duplicate {
		result = "duplicate"
	}
	callbacksTotal.WithLabelValues(provider, result).Inc()
}

// Handler serves the default registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}
