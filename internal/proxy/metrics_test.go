package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector(t *testing.T) {
	collector := NewMetricsCollector()

	// Initial state
	snap := collector.Snapshot()
	assert.Zero(t, snap.RequestCount)
	assert.Zero(t, snap.ErrorCount)
	assert.Zero(t, snap.AverageDuration)

	// Record a locally served request
	collector.RecordRequest(100*time.Millisecond, Local, false)

	snap = collector.Snapshot()
	assert.EqualValues(t, 1, snap.RequestCount)
	assert.EqualValues(t, 1, snap.LocalCount)
	assert.Zero(t, snap.ForwardCount)
	assert.Equal(t, 100*time.Millisecond, snap.AverageDuration)

	// Record a failed forwarded request
	collector.RecordRequest(200*time.Millisecond, Forward, true)

	snap = collector.Snapshot()
	assert.EqualValues(t, 2, snap.RequestCount)
	assert.EqualValues(t, 1, snap.ErrorCount)
	assert.EqualValues(t, 1, snap.ForwardCount)
	assert.Equal(t, 150*time.Millisecond, snap.AverageDuration, "(100ms + 200ms) / 2")
}

func TestMetricsHandler(t *testing.T) {
	collector := NewMetricsCollector()
	collector.RecordRequest(10*time.Millisecond, Local, false)
	collector.RecordRequest(30*time.Millisecond, Forward, true)

	recorder := httptest.NewRecorder()
	MetricsHandler(collector)(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

	var data MetricsData
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&data))
	assert.EqualValues(t, 2, data.RequestCount)
	assert.EqualValues(t, 1, data.LocalCount)
	assert.EqualValues(t, 1, data.ForwardCount)
	assert.Equal(t, 0.5, data.ErrorRate)
	assert.Equal(t, float64(20), data.AverageRequestTimeMs)
}
