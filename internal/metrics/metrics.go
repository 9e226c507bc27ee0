// Package metrics holds the proxy's monotonic counters. Per the
// concurrency model, these are single-writer from the I/O loop; atomics
// are used only so the read side (a diagnostics dump) never races.
package metrics

import "sync/atomic"

// Metrics is a single process-wide tally, owned by the server object
// rather than kept as global mutable state (tests construct fresh
// instances).
type Metrics struct {
	TotalCalls          atomic.Int64
	ProjectionCalls      atomic.Int64
	SearchCalls          atomic.Int64
	AutoTruncations      atomic.Int64
	OriginalBytes        atomic.Int64
	FilteredBytes        atomic.Int64
	ActiveConnections    atomic.Int64
	FailedConnections    atomic.Int64
}

// New returns a zeroed Metrics instance.
func New() *Metrics {
	return &Metrics{}
}

// RecordCall updates the per-call tally described in spec.md §4.6 step 6.
func (m *Metrics) RecordCall(originalSize, filteredSize int64, usedProjection, usedSearch, autoTruncated bool) {
	m.TotalCalls.Add(1)
	m.OriginalBytes.Add(originalSize)
	m.FilteredBytes.Add(filteredSize)
	if usedProjection {
		m.ProjectionCalls.Add(1)
	}
	if usedSearch {
		m.SearchCalls.Add(1)
	}
	if autoTruncated {
		m.AutoTruncations.Add(1)
	}
}

// ConnectionUp records a newly initialized upstream.
func (m *Metrics) ConnectionUp() { m.ActiveConnections.Add(1) }

// ConnectionDown records an upstream that was deregistered.
func (m *Metrics) ConnectionDown() { m.ActiveConnections.Add(-1) }

// ConnectionFailed records a handshake or fatal supervisor failure.
func (m *Metrics) ConnectionFailed() { m.FailedConnections.Add(1) }

// Snapshot is a point-in-time read of all counters, suitable for a
// diagnostics dump.
type Snapshot struct {
	TotalCalls        int64
	ProjectionCalls   int64
	SearchCalls       int64
	AutoTruncations   int64
	OriginalBytes     int64
	FilteredBytes     int64
	ActiveConnections int64
	FailedConnections int64
}

// Snap takes a consistent-enough snapshot for reporting purposes.
func (m *Metrics) Snap() Snapshot {
	return Snapshot{
		TotalCalls:        m.TotalCalls.Load(),
		ProjectionCalls:   m.ProjectionCalls.Load(),
		SearchCalls:       m.SearchCalls.Load(),
		AutoTruncations:   m.AutoTruncations.Load(),
		OriginalBytes:     m.OriginalBytes.Load(),
		FilteredBytes:     m.FilteredBytes.Load(),
		ActiveConnections: m.ActiveConnections.Load(),
		FailedConnections: m.FailedConnections.Load(),
	}
}
