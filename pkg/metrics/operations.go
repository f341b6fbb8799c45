package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OperationMetrics records cart orchestration outcomes.
type OperationMetrics struct {
	duration    *prometheus.HistogramVec
	success     *prometheus.CounterVec
	failure     *prometheus.CounterVec
	refetches   prometheus.Counter
	recreations prometheus.Counter
}

// NewOperationMetrics registers the orchestrator metrics on the provided registerer.
func NewOperationMetrics(reg prometheus.Registerer) *OperationMetrics {
	if reg == nil {
		return &OperationMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_operation_duration_seconds",
		Help:    "Duration of cart operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operation_success",
		Help: "Successful cart operations.",
	}, []string{"operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operation_failure",
		Help: "Failed cart operations.",
	}, []string{"operation"})
	refetches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_refetch_total",
		Help: "Authoritative cart refetches issued after writes.",
	})
	recreations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_recreation_total",
		Help: "Carts discarded and recreated after a rejected region change.",
	})
	reg.MustRegister(duration, success, failure, refetches, recreations)
	return &OperationMetrics{
		duration:    duration,
		success:     success,
		failure:     failure,
		refetches:   refetches,
		recreations: recreations,
	}
}

// ObserveDuration records the duration for the named operation.
func (o *OperationMetrics) ObserveDuration(operation string, duration time.Duration) {
	if o == nil || o.duration == nil {
		return
	}
	o.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named operation.
func (o *OperationMetrics) IncSuccess(operation string) {
	if o == nil || o.success == nil {
		return
	}
	o.success.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncFailure increments the failure counter for the named operation.
func (o *OperationMetrics) IncFailure(operation string) {
	if o == nil || o.failure == nil {
		return
	}
	o.failure.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncRefetch counts one authoritative refetch.
func (o *OperationMetrics) IncRefetch() {
	if o == nil || o.refetches == nil {
		return
	}
	o.refetches.Inc()
}

// IncRecreation counts one discard-and-recreate fallback.
func (o *OperationMetrics) IncRecreation() {
	if o == nil || o.recreations == nil {
		return
	}
	o.recreations.Inc()
}

func normalizeLabel(operation string) string {
	if operation == "" {
		return "unknown"
	}
	return operation
}
