package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/zeek-r/bookflow-gateway/internal/logger"
)

// Headers that httputil.ReverseProxy strips from the inbound request before
// Rewrite runs. The gateway relays them unchanged.
var forwardedHeaders = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

type errSlotKey struct{}

type errSlot struct {
	err error
}

// Forwarder relays requests verbatim to the legacy system and streams the
// response back
type Forwarder struct {
	target            *url.URL
	proxy             *httputil.ReverseProxy
	prometheusMetrics *PrometheusMetrics
}

// NewForwarder creates a forwarder for baseURL. A positive timeout bounds how
// long the upstream may take to start answering; bodies stream without limit.
func NewForwarder(baseURL string, timeout time.Duration) (*Forwarder, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid legacy base URL %q: %w", baseURL, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid legacy base URL %q: scheme and host required", baseURL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	// Relay upstream bytes as they are instead of letting the transport gunzip them
	transport.DisableCompression = true

	f := &Forwarder{target: target}
	f.proxy = &httputil.ReverseProxy{
		Rewrite:       f.rewrite,
		Transport:     transport,
		FlushInterval: -1,
		ErrorHandler:  f.captureError,
	}
	return f, nil
}

// WithTransport replaces the upstream transport
func (f *Forwarder) WithTransport(rt http.RoundTripper) *Forwarder {
	f.proxy.Transport = rt
	return f
}

// WithPrometheusMetrics makes the forwarder record upstream latency and failures
func (f *Forwarder) WithPrometheusMetrics(p *PrometheusMetrics) *Forwarder {
	f.prometheusMetrics = p
	return f
}

// Forward relays r to the legacy system. On a transport failure nothing has
// been written to w and an *UpstreamError is returned for the caller to map.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request) error {
	start := time.Now()
	slot := &errSlot{}

	logger.DebugWithFields("Forwarding request to legacy", map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
		"target": f.target.Host,
	})

	f.proxy.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), errSlotKey{}, slot)))

	if f.prometheusMetrics != nil {
		f.prometheusMetrics.RecordForward(r.Method, time.Since(start))
	}

	if slot.err != nil {
		upstreamErr := classifyUpstreamError(slot.err)
		logger.ErrorWithFields("Request to legacy failed", slot.err, map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"code":        upstreamErr.Code,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if f.prometheusMetrics != nil {
			f.prometheusMetrics.RecordUpstreamError(upstreamErr.Code)
		}
		return upstreamErr
	}
	return nil
}

func (f *Forwarder) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(f.target)
	pr.Out.URL.RawQuery = pr.In.URL.RawQuery

	for _, h := range forwardedHeaders {
		if values, ok := pr.In.Header[h]; ok {
			pr.Out.Header[h] = values
		}
	}
}

func (f *Forwarder) captureError(_ http.ResponseWriter, r *http.Request, err error) {
	if slot, ok := r.Context().Value(errSlotKey{}).(*errSlot); ok {
		slot.err = err
	}
}
