package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/zeek-r/bookflow-gateway/internal/flags"
	"github.com/zeek-r/bookflow-gateway/internal/logger"
	"github.com/zeek-r/bookflow-gateway/internal/proxy"
	"github.com/zeek-r/bookflow-gateway/internal/storage"
)

// FlagStore reads and updates migration flags
type FlagStore interface {
	Snapshot() flags.Flags
	Apply(partial map[string]any) flags.Flags
}

// Pinger checks storage connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// BookStore persists books
type BookStore interface {
	List(ctx context.Context) ([]storage.Book, error)
	Create(ctx context.Context, nb storage.NewBook) (storage.Book, error)
}

// Deps are the collaborators the local handlers use. Storage and Books are
// nil when no database is configured.
type Deps struct {
	Flags   FlagStore
	Storage Pinger
	Books   BookStore
	Metrics *proxy.PrometheusMetrics
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// Router is the in-process handler chain. Handlers return errors; the
// installed error function turns them into responses.
type Router struct {
	mux     *mux.Router
	onError proxy.ErrorFunc
}

// NewRouter creates an empty router. Until SetErrorFunc is called, failures
// are answered with a bare 500.
func NewRouter() *Router {
	return &Router{
		mux: mux.NewRouter(),
		onError: func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		},
	}
}

// Register adds the local endpoints
func (rt *Router) Register(d Deps) {
	health := &healthHandler{storage: d.Storage, metrics: d.Metrics}
	admin := &adminHandler{flags: d.Flags}
	books := &booksHandler{books: d.Books}

	// Every GET route answers HEAD too; net/http drops the body
	rt.mux.Handle(proxy.PathHealth, rt.wrap(health.status)).Methods(http.MethodGet, http.MethodHead)

	rt.mux.Handle(proxy.PathAdminFlags, rt.wrap(admin.get)).Methods(http.MethodGet, http.MethodHead)
	rt.mux.Handle(proxy.PathAdminFlags, rt.wrap(admin.set)).Methods(http.MethodPost)

	rt.mux.Handle("/books", rt.wrap(books.list)).Methods(http.MethodGet, http.MethodHead)
	rt.mux.Handle("/books", rt.wrap(books.create)).Methods(http.MethodPost)

	rt.mux.Handle("/auth/login", rt.wrap(login)).Methods(http.MethodPost)
}

// Mux exposes the underlying router for extra endpoints such as metrics
func (rt *Router) Mux() *mux.Router {
	return rt.mux
}

// SetErrorFunc installs the function every handler error is passed to
func (rt *Router) SetErrorFunc(fn proxy.ErrorFunc) {
	rt.onError = fn
}

// Match reports whether a local route exists for r's method and path
func (rt *Router) Match(r *http.Request) bool {
	var match mux.RouteMatch
	return rt.mux.Match(r, &match)
}

// ServeHTTP implements the http.Handler interface. Panics in handlers are
// recovered and reported as errors.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			rt.onError(w, r, fmt.Errorf("panic: %v", rec))
		}
	}()
	rt.mux.ServeHTTP(w, r)
}

func (rt *Router) wrap(h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			rt.onError(w, r, err)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", err)
	}
}
