package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"github.com/zeek-r/bookflow-gateway/internal/api"
	"github.com/zeek-r/bookflow-gateway/internal/config"
	"github.com/zeek-r/bookflow-gateway/internal/flags"
	"github.com/zeek-r/bookflow-gateway/internal/logger"
	"github.com/zeek-r/bookflow-gateway/internal/proxy"
	"github.com/zeek-r/bookflow-gateway/internal/storage"
)

// State is a step of the application lifecycle
type State int

const (
	StateCreated State = iota
	StatePluginsRegistered
	StateRoutesRegistered
	StateErrorHandlerInstalled
	StateListening
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePluginsRegistered:
		return "plugins_registered"
	case StateRoutesRegistered:
		return "routes_registered"
	case StateErrorHandlerInstalled:
		return "error_handler_installed"
	case StateListening:
		return "listening"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// storageModules are the modules whose local implementation needs the database
var storageModules = []flags.Module{flags.Books}

// Storage is the database capability the local handlers consume
type Storage interface {
	api.Pinger
	api.BookStore
	Close() error
}

type dbStorage struct {
	*storage.DB
	*storage.BookRepo
}

// Option customizes an Application
type Option func(*Application)

// WithStorage injects an already connected storage instead of opening one.
// The application closes it on shutdown.
func WithStorage(s Storage) Option {
	return func(a *Application) { a.store = s }
}

// WithRegistry sets the Prometheus registry metrics are registered with
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *Application) { a.registry = reg }
}

// WithUpstreamTransport replaces the transport used to reach the legacy system
func WithUpstreamTransport(rt http.RoundTripper) Option {
	return func(a *Application) { a.transport = rt }
}

// Application is the composition root. It owns the flag store, the storage
// pool and the HTTP server, and moves through the lifecycle states in order.
type Application struct {
	cfg *config.Config

	mu    sync.Mutex
	state State

	flags             *flags.Store
	store             Storage
	forwarder         *proxy.Forwarder
	cors              *cors.Cors
	router            *api.Router
	table             *proxy.RoutingTable
	dispatcher        *proxy.Dispatcher
	handler           http.Handler
	registry          *prometheus.Registry
	transport         http.RoundTripper
	metrics           *proxy.MetricsCollector
	prometheusMetrics *proxy.PrometheusMetrics

	server   *http.Server
	listener net.Listener
	serveErr chan error
}

// New creates an application in the Created state with its flag store seeded
// from the configuration
func New(cfg *config.Config, opts ...Option) *Application {
	a := &Application{
		cfg:      cfg,
		state:    StateCreated,
		flags:    flags.NewStore(cfg.Flags),
		serveErr: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current lifecycle state
func (a *Application) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Flags returns the application's flag store
func (a *Application) Flags() *flags.Store {
	return a.flags
}

// Handler returns the full request chain, available once Init succeeded
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Addr returns the bound listener address, nil before Listen
func (a *Application) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Done delivers a serve error if the listener fails after Listen. It is
// closed when serving stops.
func (a *Application) Done() <-chan error {
	return a.serveErr
}

func (a *Application) transition(from, to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != from {
		return fmt.Errorf("lifecycle: cannot move to %s from %s (expected %s)", to, a.state, from)
	}
	a.state = to
	return nil
}

// Init runs every startup step up to ErrorHandlerInstalled. Any error is
// fatal: the caller must not Listen.
func (a *Application) Init(ctx context.Context) error {
	if err := a.registerPlugins(ctx); err != nil {
		return err
	}
	if err := a.registerRoutes(); err != nil {
		return err
	}
	return a.installErrorHandler()
}

func (a *Application) registerPlugins(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateCreated {
		a.mu.Unlock()
		return fmt.Errorf("lifecycle: plugins already registered (state %s)", a.state)
	}
	a.mu.Unlock()

	if a.cfg.Metrics.Enabled {
		a.metrics = proxy.NewMetricsCollector()
		if a.cfg.Metrics.EnablePrometheus {
			if a.registry == nil {
				a.registry = prometheus.NewRegistry()
				a.registry.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
			}
			a.prometheusMetrics = proxy.NewPrometheusMetrics(a.registry)
			a.prometheusMetrics.SetFlags(a.flags.Snapshot())
			a.flags.OnChange(a.prometheusMetrics.SetFlags)
		}
	}

	a.cors = newCORS(a.cfg.CORS)

	forwarder, err := proxy.NewForwarder(a.cfg.LegacyBaseURL, time.Duration(a.cfg.Timeout)*time.Second)
	if err != nil {
		return &config.Error{Field: "legacyBaseUrl", Msg: err.Error()}
	}
	if a.transport != nil {
		forwarder.WithTransport(a.transport)
	}
	if a.prometheusMetrics != nil {
		forwarder.WithPrometheusMetrics(a.prometheusMetrics)
	}
	a.forwarder = forwarder

	if err := a.connectStorage(ctx); err != nil {
		return err
	}

	logger.InfoWithFields("Plugins registered", map[string]interface{}{
		"legacy_base_url": a.cfg.LegacyBaseURL,
		"storage":         a.store != nil,
		"cors_origins":    a.cfg.CORS.Origins,
	})
	return a.transition(StateCreated, StatePluginsRegistered)
}

func (a *Application) needsStorage() []flags.Module {
	snapshot := a.flags.Snapshot()
	var needed []flags.Module
	for _, m := range storageModules {
		if snapshot.Enabled(m) {
			needed = append(needed, m)
		}
	}
	return needed
}

// connectStorage opens the pool synchronously. A storage-backed module
// enabled without a database, or a database that does not answer, stops
// startup.
func (a *Application) connectStorage(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	if a.cfg.Storage.URL == "" {
		if needed := a.needsStorage(); len(needed) > 0 {
			return &config.Error{
				Field: "storage.url",
				Msg:   fmt.Sprintf("DATABASE_URL is required while %v enabled", needed),
			}
		}
		logger.Warn("No storage configured; storage-backed modules will answer 503")
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, seconds(a.cfg.Storage.ConnectTimeout, 5))
	defer cancel()

	db, err := storage.Open(connectCtx, a.cfg.Storage.URL, storage.Options{
		MaxOpenConns: a.cfg.Storage.MaxOpenConns,
		MaxIdleConns: a.cfg.Storage.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("connect storage: %w", err)
	}

	if a.cfg.Storage.ShouldMigrate() {
		migrator, err := storage.NewMigrator(a.cfg.Storage.URL)
		if err == nil {
			err = migrator.Up()
		}
		if err != nil {
			db.Close()
			return fmt.Errorf("migrate storage: %w", err)
		}
	}

	a.store = dbStorage{DB: db, BookRepo: storage.NewBookRepo(db)}
	logger.Info("Storage connected, database features enabled")
	return nil
}

func (a *Application) registerRoutes() error {
	if a.State() != StatePluginsRegistered {
		return fmt.Errorf("lifecycle: routes need plugins first (state %s)", a.State())
	}

	deps := api.Deps{Flags: a.flags, Metrics: a.prometheusMetrics}
	if a.store != nil {
		deps.Storage = a.store
		deps.Books = a.store
	}

	a.router = api.NewRouter()
	a.router.Register(deps)

	var reserved []string
	if a.cfg.Metrics.Enabled {
		var gatherer prometheus.Gatherer
		if a.registry != nil {
			gatherer = a.registry
		}
		metricsCfg := a.cfg.Metrics
		if metricsCfg.Endpoint == "" {
			metricsCfg.Endpoint = "/metrics"
		}
		proxy.SetupMetricsEndpoints(a.router.Mux(), metricsCfg, a.metrics, gatherer)
		reserved = append(reserved, metricsCfg.Endpoint)
	}
	a.table = proxy.NewRoutingTable(reserved...)

	return a.transition(StatePluginsRegistered, StateRoutesRegistered)
}

func (a *Application) installErrorHandler() error {
	if a.State() != StateRoutesRegistered {
		return fmt.Errorf("lifecycle: error handler needs routes first (state %s)", a.State())
	}

	mapper := api.NewErrorMapper()
	a.router.SetErrorFunc(mapper.Handle)

	a.dispatcher = proxy.NewDispatcher(a.table, a.flags, a.router, a.forwarder, mapper.Handle)
	if a.metrics != nil {
		a.dispatcher.WithMetrics(a.metrics)
	}
	if a.prometheusMetrics != nil {
		a.dispatcher.WithPrometheusMetrics(a.prometheusMetrics)
	}
	a.handler = a.cors.Handler(a.dispatcher)

	return a.transition(StateRoutesRegistered, StateErrorHandlerInstalled)
}

// Listen binds addr and starts serving. It is the last startup step.
func (a *Application) Listen(addr string) error {
	if a.State() != StateErrorHandlerInstalled {
		return fmt.Errorf("lifecycle: cannot listen before startup completes (state %s)", a.State())
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.mu.Lock()
	a.server = server
	a.listener = ln
	a.state = StateListening
	a.mu.Unlock()

	go func() {
		defer close(a.serveErr)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.serveErr <- err
		}
	}()

	logger.InfoWithFields(fmt.Sprintf("Gateway listening on %s", ln.Addr()), map[string]interface{}{
		"legacy_base_url": a.cfg.LegacyBaseURL,
		"flags":           a.flags.Snapshot(),
		"timeout":         a.cfg.Timeout,
	})
	return nil
}

// Close stops accepting connections, waits for in-flight requests up to the
// shutdown timeout, then releases storage. Storage is released even when the
// drain fails. Calling Close again is a no-op.
func (a *Application) Close(ctx context.Context) (err error) {
	a.mu.Lock()
	if a.state == StateClosing || a.state == StateClosed {
		a.mu.Unlock()
		return nil
	}
	a.state = StateClosing
	server := a.server
	a.mu.Unlock()

	defer func() {
		if a.store != nil {
			if closeErr := a.store.Close(); closeErr != nil {
				logger.Error("Failed to close storage", closeErr)
				err = errors.Join(err, closeErr)
			} else {
				logger.Info("Storage disconnected")
			}
		}

		a.mu.Lock()
		a.state = StateClosed
		a.mu.Unlock()
	}()

	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, seconds(a.cfg.ShutdownTimeout, 10))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err)
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func newCORS(cfg config.CORSConfig) *cors.Cors {
	opts := cors.Options{
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodHead,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
	if cfg.AllowsAnyOrigin() {
		opts.AllowOriginFunc = func(string) bool { return true }
	} else {
		opts.AllowedOrigins = cfg.Origins
	}
	return cors.New(opts)
}
