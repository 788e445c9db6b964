package proxy

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/zeek-r/bookflow-gateway/internal/flags"
	"github.com/zeek-r/bookflow-gateway/internal/logger"
)

// Decision says who serves a request
type Decision int

const (
	// Local means the in-process handler chain serves the request
	Local Decision = iota
	// Forward means the request is relayed to the legacy system
	Forward
)

func (d Decision) String() string {
	if d == Forward {
		return "forward"
	}
	return "local"
}

// Route is the outcome of dispatching one request
type Route struct {
	Decision Decision
	Module   flags.Module // empty when no module owns the path
	Reserved bool
}

func (rt Route) moduleLabel() string {
	switch {
	case rt.Module != "":
		return string(rt.Module)
	case rt.Reserved:
		return "reserved"
	default:
		return "none"
	}
}

type routeKey struct{}

// RouteFromContext returns the route chosen for the request carrying ctx
func RouteFromContext(ctx context.Context) (Route, bool) {
	rt, ok := ctx.Value(routeKey{}).(Route)
	return rt, ok
}

// FlagReader exposes the current flag snapshot
type FlagReader interface {
	Snapshot() flags.Flags
}

// LocalHandler is the in-process handler chain. Match reports whether a local
// route exists for the request's method and path.
type LocalHandler interface {
	http.Handler
	Match(r *http.Request) bool
}

// Upstream relays a request to the legacy system
type Upstream interface {
	Forward(w http.ResponseWriter, r *http.Request) error
}

// ErrorFunc writes the client-facing response for a failed request
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// Dispatcher decides, before any handler runs, whether a request is served
// locally or forwarded, and then hands it to exactly one of the two.
type Dispatcher struct {
	table             *RoutingTable
	flags             FlagReader
	local             LocalHandler
	upstream          Upstream
	onError           ErrorFunc
	metrics           *MetricsCollector
	prometheusMetrics *PrometheusMetrics
}

// NewDispatcher wires the routing table, flag state, local chain, upstream
// and error mapper together
func NewDispatcher(table *RoutingTable, flagReader FlagReader, local LocalHandler, upstream Upstream, onError ErrorFunc) *Dispatcher {
	return &Dispatcher{
		table:    table,
		flags:    flagReader,
		local:    local,
		upstream: upstream,
		onError:  onError,
	}
}

// WithMetrics adds the in-memory dispatch statistics
func (d *Dispatcher) WithMetrics(m *MetricsCollector) *Dispatcher {
	d.metrics = m
	return d
}

// WithPrometheusMetrics adds Prometheus instrumentation
func (d *Dispatcher) WithPrometheusMetrics(p *PrometheusMetrics) *Dispatcher {
	d.prometheusMetrics = p
	return d
}

// Decide computes the route for r. The flag snapshot is read at most once.
func (d *Dispatcher) Decide(r *http.Request) Route {
	path := r.URL.Path

	if d.table.IsReserved(path) {
		return Route{Decision: Local, Reserved: true}
	}

	if module, owned := d.table.ModuleFor(path); owned {
		if !d.flags.Snapshot().Enabled(module) {
			return Route{Decision: Forward, Module: module}
		}
		// Sub-paths the new implementation does not serve yet stay with legacy
		if d.local.Match(r) {
			return Route{Decision: Local, Module: module}
		}
		return Route{Decision: Forward, Module: module}
	}

	if d.local.Match(r) {
		return Route{Decision: Local}
	}
	return Route{Decision: Forward}
}

// ServeHTTP implements the http.Handler interface
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestStart := time.Now()

	if d.prometheusMetrics != nil {
		d.prometheusMetrics.RequestStarted()
		defer d.prometheusMetrics.RequestFinished()
	}

	route := d.Decide(r)
	r = r.WithContext(context.WithValue(r.Context(), routeKey{}, route))
	rec := newStatusRecorder(w)

	switch route.Decision {
	case Forward:
		if err := d.upstream.Forward(rec, r); err != nil {
			d.onError(rec, r, err)
		}
	default:
		d.local.ServeHTTP(rec, r)
	}

	d.record(r, route, rec.Status(), requestStart)
}

func (d *Dispatcher) record(r *http.Request, route Route, status int, requestStart time.Time) {
	duration := time.Since(requestStart)

	if d.prometheusMetrics != nil {
		d.prometheusMetrics.RecordRequest(route.moduleLabel(), route.Decision.String(), r.Method, strconv.Itoa(status), duration)
	}
	if d.metrics != nil {
		d.metrics.RecordRequest(duration, route.Decision, status >= http.StatusInternalServerError)
	}

	logger.InfoWithFields("Request dispatched", map[string]interface{}{
		"method":      r.Method,
		"path":        r.URL.Path,
		"module":      route.moduleLabel(),
		"decision":    route.Decision.String(),
		"status_code": status,
		"duration_ms": duration.Milliseconds(),
	})
}
