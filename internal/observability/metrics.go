package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "resource_queue"

// Metrics exposes Prometheus collectors. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	Registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpErrors       *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	notifications    prometheus.Counter
	pushDeliveries   *prometheus.CounterVec
	cleanups         *prometheus.CounterVec
	txRetries        *prometheus.CounterVec
	expiredAwaitings prometheus.Counter
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Count of error responses by code",
		}, []string{"method", "path", "code"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Ticket transition requests by target status and result",
		}, []string{"target", "result"}),
		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Availability notifications created by queue promotion",
		}),
		pushDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_deliveries_total",
			Help:      "Web push deliveries by result",
		}, []string{"result"}),
		cleanups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_operations_total",
			Help:      "Per-resource cleanup operations by source and result",
		}, []string{"source", "result"}),
		txRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_retries_total",
			Help:      "Transactions retried after a conflict",
		}, []string{"operation"}),
		expiredAwaitings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "awaiting_confirmation_expired_total",
			Help:      "Reservations released because confirmation timed out",
		}),
	}
}

// RecordRequest records an HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, code).Inc()
	m.httpDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(method, path, code).Inc()
}

// ObserveTransition counts a transition request outcome.
func (m *Metrics) ObserveTransition(target, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(target, result).Inc()
}

// ObserveNotification counts a committed notification as it is delivered.
func (m *Metrics) ObserveNotification() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}

// ObservePushDelivery counts one push attempt.
func (m *Metrics) ObservePushDelivery(result string) {
	if m == nil {
		return
	}
	m.pushDeliveries.WithLabelValues(result).Inc()
}

// ObserveCleanup counts one per-resource cleanup.
func (m *Metrics) ObserveCleanup(source, result string) {
	if m == nil {
		return
	}
	m.cleanups.WithLabelValues(source, result).Inc()
}

// ObserveTxRetry counts a retried transaction.
func (m *Metrics) ObserveTxRetry(operation string) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(operation).Inc()
}

// ObserveExpiredAwaiting counts a timed out reservation.
func (m *Metrics) ObserveExpiredAwaiting() {
	if m == nil {
		return
	}
	m.expiredAwaitings.Inc()
}
