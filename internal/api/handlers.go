package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/zeek-r/bookflow-gateway/internal/logger"
	"github.com/zeek-r/bookflow-gateway/internal/proxy"
	"github.com/zeek-r/bookflow-gateway/internal/storage"
)

const maxBodyBytes = 1 << 20

type healthHandler struct {
	storage Pinger
	metrics *proxy.PrometheusMetrics
}

type healthResponse struct {
	OK    bool   `json:"ok"`
	DB    string `json:"db"`
	Error string `json:"error,omitempty"`
}

// GET /health
func (h *healthHandler) status(w http.ResponseWriter, r *http.Request) error {
	err := storage.ErrNotConfigured
	if h.storage != nil {
		err = h.storage.Ping(r.Context())
	}

	if h.metrics != nil {
		h.metrics.SetStorageHealth(err == nil)
	}

	if err != nil {
		logger.WarnWithFields("Storage health check failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{OK: false, DB: "down", Error: err.Error()})
		return nil
	}
	writeJSON(w, http.StatusOK, healthResponse{OK: true, DB: "up"})
	return nil
}

type adminHandler struct {
	flags FlagStore
}

// GET /admin/flags
func (h *adminHandler) get(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, h.flags.Snapshot())
	return nil
}

// POST /admin/flags
func (h *adminHandler) set(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return NewStatusError(http.StatusBadRequest, err)
	}

	partial := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &partial); err != nil {
			return NewStatusError(http.StatusBadRequest, err)
		}
	}

	// Unknown keys and non-boolean values are ignored, not rejected
	updated := h.flags.Apply(partial)

	logger.InfoWithFields("Migration flags updated", map[string]interface{}{
		"requested": partial,
		"flags":     updated,
	})
	writeJSON(w, http.StatusOK, updated)
	return nil
}

type booksHandler struct {
	books BookStore
}

const errBookFieldsRequired = "title, author, ownerId are required"

type createBookRequest struct {
	Title   string  `json:"title"`
	Author  string  `json:"author"`
	OwnerID ownerID `json:"ownerId"`
}

// ownerID accepts a JSON number or a numeric string, including integral
// forms such as 1.0 or 1e0. Anything else decodes to zero, which validation
// treats as missing.
type ownerID int64

func (o *ownerID) UnmarshalJSON(data []byte) error {
	*o = 0
	raw := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(data)), `"`))
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*o = ownerID(n)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
		return nil
	}
	*o = ownerID(int64(f))
	return nil
}

// GET /books
func (h *booksHandler) list(w http.ResponseWriter, r *http.Request) error {
	if h.books == nil {
		return storage.ErrNotConfigured
	}

	items, err := h.books.List(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, items)
	return nil
}

// POST /books
func (h *booksHandler) create(w http.ResponseWriter, r *http.Request) error {
	var req createBookRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: errBookFieldsRequired})
		return nil
	}

	if req.Title == "" || req.Author == "" || req.OwnerID == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: errBookFieldsRequired})
		return nil
	}

	if h.books == nil {
		return storage.ErrNotConfigured
	}

	created, err := h.books.Create(r.Context(), storage.NewBook{
		Title:   req.Title,
		Author:  req.Author,
		OwnerID: int64(req.OwnerID),
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, created)
	return nil
}

// POST /auth/login is a placeholder until authentication lands
func login(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	return nil
}
