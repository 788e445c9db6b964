package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Upstream failure codes reported to callers in the 502 body
const (
	CodeConnRefused    = "ECONNREFUSED"
	CodeNotFound       = "ENOTFOUND"
	CodeTimeout        = "ETIMEDOUT"
	CodeUpstreamFailed = "UPSTREAM_FAILED"
)

// UpstreamError reports that the legacy system could not be reached or failed
// while relaying. The forwarder returns it; the error mapper picks the status.
type UpstreamError struct {
	Code string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream unreachable (%s): %v", e.Code, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// classifyUpstreamError turns a transport error into an UpstreamError
func classifyUpstreamError(err error) *UpstreamError {
	var dnsErr *net.DNSError
	var netErr net.Error

	code := CodeUpstreamFailed
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		code = CodeConnRefused
	case errors.As(err, &dnsErr):
		code = CodeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		code = CodeTimeout
	}
	return &UpstreamError{Code: code, Err: err}
}
