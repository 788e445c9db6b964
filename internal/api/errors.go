// Package api serves the gateway's local endpoints: health, flag admin, the
// migrated books module and the auth placeholder, plus the error mapper all
// failures go through.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/zeek-r/bookflow-gateway/internal/logger"
	"github.com/zeek-r/bookflow-gateway/internal/proxy"
	"github.com/zeek-r/bookflow-gateway/internal/storage"
)

// StatusError is a failure that declares the HTTP status it should produce
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return http.StatusText(e.Status)
	}
	return fmt.Sprintf("%d %s: %v", e.Status, http.StatusText(e.Status), e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// NewStatusError wraps err with a declared status
func NewStatusError(status int, err error) *StatusError {
	return &StatusError{Status: status, Err: err}
}

// ErrorBody is the JSON shape of every mapped error response
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// ErrorMapper turns any unrecovered failure into the client-facing response.
// It is the only place where failures get a status code.
type ErrorMapper struct{}

// NewErrorMapper creates the mapper
func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{}
}

// Resolve returns the status and body for err
func (m *ErrorMapper) Resolve(err error) (int, ErrorBody) {
	var upstreamErr *proxy.UpstreamError
	var statusErr *StatusError

	switch {
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway, ErrorBody{
			Error:   "Bad Gateway",
			Message: "Upstream unreachable",
			Details: upstreamErr.Code,
		}
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, storage.ErrNotConfigured):
		return http.StatusServiceUnavailable, ErrorBody{Error: http.StatusText(http.StatusServiceUnavailable)}
	case errors.As(err, &statusErr) && statusErr.Status >= 400 && statusErr.Status <= 599:
		return statusErr.Status, ErrorBody{Error: http.StatusText(statusErr.Status)}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: http.StatusText(http.StatusInternalServerError)}
	}
}

// Handle writes the mapped response for err, unless the response has already
// been started
func (m *ErrorMapper) Handle(w http.ResponseWriter, r *http.Request, err error) {
	status, body := m.Resolve(err)

	fields := map[string]interface{}{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": status,
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorWithFields("Request failed", err, fields)
	} else {
		fields["error"] = err.Error()
		logger.WarnWithFields("Request rejected", fields)
	}

	if c, ok := w.(interface{ Committed() bool }); ok && c.Committed() {
		logger.WarnWithFields("Response already started, cannot write error", fields)
		return
	}
	writeJSON(w, status, body)
}
