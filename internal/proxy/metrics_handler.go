package proxy

import (
	"encoding/json"
	"net/http"
	"time"
)

// MetricsData represents the metrics data structure for JSON output
type MetricsData struct {
	RequestCount         int64     `json:"request_count"`
	LocalCount           int64     `json:"local_count"`
	ForwardCount         int64     `json:"forward_count"`
	ErrorCount           int64     `json:"error_count"`
	ErrorRate            float64   `json:"error_rate"`
	AverageRequestTimeMs float64   `json:"avg_request_time_ms"`
	LastRequestTimestamp time.Time `json:"last_request_time"`
	UptimeSeconds        float64   `json:"uptime_seconds"`
	StartTime            time.Time `json:"start_time"`
}

// MetricsHandler creates an HTTP handler exposing the dispatch statistics as JSON
func MetricsHandler(m *MetricsCollector) http.HandlerFunc {
	startTime := time.Now()

	return func(w http.ResponseWriter, r *http.Request) {
		snap := m.Snapshot()

		var errorRate float64
		if snap.RequestCount > 0 {
			errorRate = float64(snap.ErrorCount) / float64(snap.RequestCount)
		}

		data := MetricsData{
			RequestCount:         snap.RequestCount,
			LocalCount:           snap.LocalCount,
			ForwardCount:         snap.ForwardCount,
			ErrorCount:           snap.ErrorCount,
			ErrorRate:            errorRate,
			AverageRequestTimeMs: float64(snap.AverageDuration) / float64(time.Millisecond),
			LastRequestTimestamp: snap.LastRequest,
			UptimeSeconds:        time.Since(startTime).Seconds(),
			StartTime:            startTime,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(data)
	}
}
