package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	ticksRun       atomic.Uint64
	ticksSkipped   atomic.Uint64
	postingsOK     atomic.Uint64
	postingsFailed atomic.Uint64
	errorsTotal    atomic.Uint64

	// Tick latency tracking
	tickSumNs atomic.Int64
	tickCount atomic.Uint64

	// Gauges
	activeSubscribers atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordTick records one completed engine tick with its latency.
func (m *Metrics) RecordTick(latencyNs int64) {
	m.ticksRun.Add(1)
	m.tickSumNs.Add(latencyNs)
	m.tickCount.Add(1)
}

// RecordTickSkipped records a tick skipped by the single-flight guard.
func (m *Metrics) RecordTickSkipped() {
	m.ticksSkipped.Add(1)
}

// RecordPosting records a ledger posting outcome.
func (m *Metrics) RecordPosting(ok bool) {
	if ok {
		m.postingsOK.Add(1)
	} else {
		m.postingsFailed.Add(1)
	}
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// SetActiveSubscribers sets the current broadcast subscriber count.
func (m *Metrics) SetActiveSubscribers(count int32) {
	m.activeSubscribers.Store(count)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TicksRun          uint64
	TicksSkipped      uint64
	PostingsOK        uint64
	PostingsFailed    uint64
	ErrorsTotal       uint64
	AvgTickNs         int64
	ActiveSubscribers int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgTick int64
	count := m.tickCount.Load()
	if count > 0 {
		avgTick = m.tickSumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		TicksRun:          m.ticksRun.Load(),
		TicksSkipped:      m.ticksSkipped.Load(),
		PostingsOK:        m.postingsOK.Load(),
		PostingsFailed:    m.postingsFailed.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgTickNs:         avgTick,
		ActiveSubscribers: m.activeSubscribers.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.ticksRun.Store(0)
	m.ticksSkipped.Store(0)
	m.postingsOK.Store(0)
	m.postingsFailed.Store(0)
	m.errorsTotal.Store(0)
	m.tickSumNs.Store(0)
	m.tickCount.Store(0)
	m.activeSubscribers.Store(0)
}
