package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zeek-r/bookflow-gateway/internal/flags"
)

var (
	// Default namespace for all metrics
	namespace = "bookflow_gateway"
)

// PrometheusMetrics holds all the Prometheus metrics for the gateway
type PrometheusMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	forwardDuration  *prometheus.HistogramVec
	upstreamErrors   *prometheus.CounterVec
	inFlightRequests prometheus.Gauge
	moduleMigrated   *prometheus.GaugeVec
	storageUp        prometheus.Gauge
}

// NewPrometheusMetrics creates a new set of Prometheus metrics
func NewPrometheusMetrics(registry ...prometheus.Registerer) *PrometheusMetrics {
	// Use default registerer if none is provided
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	if len(registry) > 0 && registry[0] != nil {
		reg = registry[0]
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests dispatched, by owning module and decision",
			},
			[]string{"module", "decision", "method", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"decision", "method"},
		),
		forwardDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "forward_duration_seconds",
				Help:      "Duration of requests relayed to the legacy system in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		upstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Failures reaching the legacy system, by failure code",
			},
			[]string{"code"},
		),
		inFlightRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_requests",
				Help:      "Number of requests currently being processed",
			},
		),
		moduleMigrated: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "module_migrated",
				Help:      "Migration flag per module (1=served locally, 0=forwarded to legacy)",
			},
			[]string{"module"},
		),
		storageUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "storage_up",
				Help:      "Result of the last storage health check (1=up, 0=down)",
			},
		),
	}
}

// RecordRequest records metrics for a completed request
func (p *PrometheusMetrics) RecordRequest(module, decision, method, status string, duration time.Duration) {
	p.requestsTotal.WithLabelValues(module, decision, method, status).Inc()
	p.requestDuration.WithLabelValues(decision, method).Observe(duration.Seconds())
}

// RecordForward records the duration of a relayed request
func (p *PrometheusMetrics) RecordForward(method string, duration time.Duration) {
	p.forwardDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordUpstreamError counts a failure reaching the legacy system
func (p *PrometheusMetrics) RecordUpstreamError(code string) {
	p.upstreamErrors.WithLabelValues(code).Inc()
}

// RequestStarted increments the gauge for in-flight requests
func (p *PrometheusMetrics) RequestStarted() {
	p.inFlightRequests.Inc()
}

// RequestFinished decrements the gauge for in-flight requests
func (p *PrometheusMetrics) RequestFinished() {
	p.inFlightRequests.Dec()
}

// SetFlags mirrors a flag snapshot into the module_migrated gauge
func (p *PrometheusMetrics) SetFlags(f flags.Flags) {
	for m, on := range f {
		var value float64
		if on {
			value = 1.0
		}
		p.moduleMigrated.WithLabelValues(string(m)).Set(value)
	}
}

// SetStorageHealth records the outcome of a storage health check
func (p *PrometheusMetrics) SetStorageHealth(healthy bool) {
	var value float64
	if healthy {
		value = 1.0
	}
	p.storageUp.Set(value)
}
