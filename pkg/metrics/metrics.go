package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "erp"

var (
	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "store_operations_total", Help: "Data store operations by backend, collection, operation and result."},
		[]string{"backend", "collection", "op", "result"},
	)
	StoreOperationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "store_operation_seconds", Help: "Data store operation latency.", Buckets: prometheus.DefBuckets},
		[]string{"backend", "op"},
	)
	ReportCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "report_cache_total", Help: "Report cache lookups by result (hit, miss, error)."},
		[]string{"result"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(StoreOperations)
	reg.MustRegister(StoreOperationSeconds)
	reg.MustRegister(ReportCache)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}

// ObserveStore records one store operation.
func ObserveStore(backend, collection, op string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StoreOperations.WithLabelValues(backend, collection, op, result).Inc()
	StoreOperationSeconds.WithLabelValues(backend, op).Observe(time.Since(started).Seconds())
}
