package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeek-r/bookflow-gateway/internal/proxy"
	"github.com/zeek-r/bookflow-gateway/internal/storage"
)

func TestErrorMapperResolve(t *testing.T) {
	mapper := NewErrorMapper()

	tests := []struct {
		name   string
		err    error
		status int
		body   ErrorBody
	}{
		{
			name:   "upstream refused",
			err:    &proxy.UpstreamError{Code: proxy.CodeConnRefused, Err: errors.New("dial")},
			status: http.StatusBadGateway,
			body:   ErrorBody{Error: "Bad Gateway", Message: "Upstream unreachable", Details: "ECONNREFUSED"},
		},
		{
			name:   "wrapped upstream timeout",
			err:    fmt.Errorf("relay: %w", &proxy.UpstreamError{Code: proxy.CodeTimeout, Err: errors.New("deadline")}),
			status: http.StatusBadGateway,
			body:   ErrorBody{Error: "Bad Gateway", Message: "Upstream unreachable", Details: "ETIMEDOUT"},
		},
		{
			name:   "storage unavailable",
			err:    fmt.Errorf("list books: %w", storage.ErrUnavailable),
			status: http.StatusServiceUnavailable,
			body:   ErrorBody{Error: "Service Unavailable"},
		},
		{
			name:   "storage not configured",
			err:    storage.ErrNotConfigured,
			status: http.StatusServiceUnavailable,
			body:   ErrorBody{Error: "Service Unavailable"},
		},
		{
			name:   "declared status",
			err:    NewStatusError(http.StatusBadRequest, errors.New("bad json")),
			status: http.StatusBadRequest,
			body:   ErrorBody{Error: "Bad Request"},
		},
		{
			name:   "declared status outside error range",
			err:    NewStatusError(http.StatusOK, errors.New("odd")),
			status: http.StatusInternalServerError,
			body:   ErrorBody{Error: "Internal Server Error"},
		},
		{
			name:   "anything else",
			err:    errors.New("database exploded: password=hunter2"),
			status: http.StatusInternalServerError,
			body:   ErrorBody{Error: "Internal Server Error"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			status, body := mapper.Resolve(test.err)
			assert.Equal(t, test.status, status)
			assert.Equal(t, test.body, body)
		})
	}
}

func TestErrorMapperHandleWritesJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	NewErrorMapper().Handle(rec, httptest.NewRequest(http.MethodGet, "/books", nil),
		&proxy.UpstreamError{Code: proxy.CodeNotFound, Err: errors.New("no such host")})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{
		"error":   "Bad Gateway",
		"message": "Upstream unreachable",
		"details": "ENOTFOUND",
	}, body)
}

func TestErrorMapperInternalErrorHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	NewErrorMapper().Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("secret internals"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret")
}

// committedWriter reports a response that has already started
type committedWriter struct {
	*httptest.ResponseRecorder
}

func (committedWriter) Committed() bool { return true }

func TestErrorMapperSkipsCommittedResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusOK)
	io.WriteString(rec, "partial")

	NewErrorMapper().Handle(committedWriter{rec}, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("late failure"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
}
