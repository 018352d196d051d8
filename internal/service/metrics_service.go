package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Payment outcomes recorded by payments_completed_total.
const (
	PaymentOutcomePaid        = "paid"
	PaymentOutcomeAlreadyPaid = "already_paid"
	PaymentOutcomeRejected    = "rejected"
	PaymentOutcomeFailed      = "failed"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache and enrollment workflows.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	enrollmentsRequested prometheus.Counter
	enrollmentsDropped   prometheus.Counter
	paymentsCompleted    *prometheus.CounterVec
	rolePromotions       prometheus.Counter
	paymentDuration      prometheus.Observer
}

// NewMetricsService registers core Prometheus collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	enrollmentsRequested := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_requested_total",
		Help: "Enrollments created in PENDING_PAYMENT",
	})

	enrollmentsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_dropped_total",
		Help: "Enrollments moved to DROPPED",
	})

	paymentsCompleted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_completed_total",
		Help: "Payment attempts by outcome",
	}, []string{"outcome"})

	rolePromotions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "role_promotions_total",
		Help: "Persons promoted from USER to STUDENT",
	})

	paymentDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_duration_seconds",
		Help:    "Duration of the payment unit of work",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		enrollmentsRequested, enrollmentsDropped, paymentsCompleted, rolePromotions, paymentDuration, goroutines)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheLatency:         cacheLatency,
		cacheWrite:           cacheWrite,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
		enrollmentsRequested: enrollmentsRequested,
		enrollmentsDropped:   enrollmentsDropped,
		paymentsCompleted:    paymentsCompleted,
		rolePromotions:       rolePromotions,
		paymentDuration:      paymentDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mostly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// EnrollmentRequested counts a new PENDING_PAYMENT enrollment.
func (m *MetricsService) EnrollmentRequested() {
	if m == nil {
		return
	}
	m.enrollmentsRequested.Inc()
}

// EnrollmentDropped counts a first transition to DROPPED.
func (m *MetricsService) EnrollmentDropped() {
	if m == nil {
		return
	}
	m.enrollmentsDropped.Inc()
}

// PaymentCompleted counts a payment attempt under the given outcome and records its duration.
func (m *MetricsService) PaymentCompleted(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.paymentsCompleted.WithLabelValues(outcome).Inc()
	m.paymentDuration.Observe(duration.Seconds())
}

// RolePromoted counts a USER to STUDENT promotion.
func (m *MetricsService) RolePromoted() {
	if m == nil {
		return
	}
	m.rolePromotions.Inc()
}
