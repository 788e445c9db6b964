package proxy

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeek-r/bookflow-gateway/internal/config"
	"github.com/zeek-r/bookflow-gateway/internal/logger"
)

// SetupMetricsEndpoints registers the metrics endpoint on the local router.
// With Prometheus enabled the endpoint serves gatherer in exposition format,
// otherwise it serves the JSON statistics of collector.
func SetupMetricsEndpoints(router *mux.Router, cfg config.MetricsConfig, collector *MetricsCollector, gatherer prometheus.Gatherer) {
	if !cfg.Enabled {
		return
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "/metrics"
	}

	if cfg.EnablePrometheus && gatherer != nil {
		logger.InfoWithFields("Enabling Prometheus metrics endpoint", map[string]interface{}{
			"endpoint": endpoint,
		})
		router.Handle(endpoint, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
		return
	}

	logger.InfoWithFields("Enabling JSON metrics endpoint", map[string]interface{}{
		"endpoint": endpoint,
	})
	router.HandleFunc(endpoint, MetricsHandler(collector)).Methods(http.MethodGet)
}
