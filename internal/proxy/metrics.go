package proxy

import (
	"sync"
	"time"
)

// MetricsCollector keeps in-memory counters about dispatch outcomes
type MetricsCollector struct {
	mu              sync.RWMutex
	requestCount    int64
	errorCount      int64
	localCount      int64
	forwardCount    int64
	requestDuration time.Duration
	lastRequest     time.Time
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		lastRequest: time.Now(),
	}
}

// RecordRequest records one dispatched request
func (m *MetricsCollector) RecordRequest(duration time.Duration, decision Decision, isError bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestCount++
	m.requestDuration += duration
	m.lastRequest = time.Now()

	if decision == Forward {
		m.forwardCount++
	} else {
		m.localCount++
	}
	if isError {
		m.errorCount++
	}
}

// Snapshot is a consistent copy of the collector's counters
type Snapshot struct {
	RequestCount    int64
	ErrorCount      int64
	LocalCount      int64
	ForwardCount    int64
	AverageDuration time.Duration
	LastRequest     time.Time
}

// Snapshot returns all counters read under one lock
func (m *MetricsCollector) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		RequestCount: m.requestCount,
		ErrorCount:   m.errorCount,
		LocalCount:   m.localCount,
		ForwardCount: m.forwardCount,
		LastRequest:  m.lastRequest,
	}
	if m.requestCount > 0 {
		snap.AverageDuration = m.requestDuration / time.Duration(m.requestCount)
	}
	return snap
}
