package proxy

import "net/http"

// statusRecorder remembers the status written through it. It keeps Flush and
// Unwrap so streamed upstream responses are flushed as they arrive.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.written {
		s.status = code
		// 1xx responses are informational; the final status follows
		s.written = code >= 200
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.written = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Flush() {
	s.written = true
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Committed reports whether the response status has been sent
func (s *statusRecorder) Committed() bool {
	return s.written
}

// Status returns the response status, 200 if none was written explicitly
func (s *statusRecorder) Status() int {
	return s.status
}
