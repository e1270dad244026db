package app

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/pycover/internal/coverage"
)

// Metrics counts coverage runs and how long they took.
type Metrics struct {
	started    atomic.Uint64
	succeeded  atomic.Uint64
	superseded atomic.Uint64
	annotated  atomic.Uint64
	timed      atomic.Uint64

	totalNs atomic.Int64
	minNs   atomic.Int64
	maxNs   atomic.Int64

	mu       sync.Mutex
	failures map[coverage.Kind]uint64
}

// NewMetrics creates an empty Metrics.
func NewMetrics() *Metrics {
	m := &Metrics{failures: make(map[coverage.Kind]uint64)}
	m.minNs.Store(1<<63 - 1)
	return m
}

// RecordStart counts a run that was started.
func (m *Metrics) RecordStart() {
	m.started.Add(1)
}

// RecordResult counts a finished run.
func (m *Metrics) RecordResult(r coverage.Result) {
	if r.Superseded {
		m.superseded.Add(1)
		return
	}

	ns := r.Elapsed.Nanoseconds()
	m.timed.Add(1)
	m.totalNs.Add(ns)
	for {
		old := m.minNs.Load()
		if ns >= old || m.minNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.maxNs.Load()
		if ns <= old || m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}

	if r.Err != nil {
		m.mu.Lock()
		m.failures[coverage.KindOf(r.Err)]++
		m.mu.Unlock()
		return
	}
	m.succeeded.Add(1)
	m.annotated.Add(uint64(r.Annotated))
}

// RecordFailure counts a run that failed before a job started.
func (m *Metrics) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[coverage.KindOf(err)]++
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	failures := make(map[coverage.Kind]uint64, len(m.failures))
	var failed uint64
	for k, n := range m.failures {
		failures[k] = n
		failed += n
	}
	m.mu.Unlock()

	s := MetricsSnapshot{
		Started:    m.started.Load(),
		Succeeded:  m.succeeded.Load(),
		Failed:     failed,
		Superseded: m.superseded.Load(),
		Annotated:  m.annotated.Load(),
		Failures:   failures,
		MaxTime:    time.Duration(m.maxNs.Load()),
	}
	if minNs := m.minNs.Load(); minNs != 1<<63-1 {
		s.MinTime = time.Duration(minNs)
	}
	if timed := m.timed.Load(); timed > 0 {
		s.AvgTime = time.Duration(m.totalNs.Load() / int64(timed))
	}
	return s
}

// MetricsSnapshot is a point-in-time view of Metrics.
type MetricsSnapshot struct {
	Started    uint64
	Succeeded  uint64
	Failed     uint64
	Superseded uint64
	// Annotated is the total number of lines highlighted.
	Annotated uint64
	Failures  map[coverage.Kind]uint64
	MinTime   time.Duration
	MaxTime   time.Duration
	AvgTime   time.Duration
}
