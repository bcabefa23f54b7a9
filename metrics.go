package factdb

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives operational metrics from a DB.
// Implement it to integrate with a monitoring system; package metric
// provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordIntern is called after each GetOrCreateValueID.
	RecordIntern(sort string, duration time.Duration, err error)

	// RecordLookup is called after each ValueID and FetchValue.
	RecordLookup(sort string, found bool, duration time.Duration, err error)

	// RecordEdgeUpdate is called after each UpdateEdges. edges is the number
	// of edge instances written.
	RecordEdgeUpdate(sort string, edges int, duration time.Duration, err error)

	// RecordEdgeFetch is called after each edge container fetch.
	RecordEdgeFetch(sort string, found bool, duration time.Duration, err error)

	// RecordCommit is called after each Commit. pending is the number of
	// buffered writes the commit applied.
	RecordCommit(pending int, duration time.Duration, err error)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIntern(string, time.Duration, error)          {}
func (NoopMetricsCollector) RecordLookup(string, bool, time.Duration, error)    {}
func (NoopMetricsCollector) RecordEdgeUpdate(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordEdgeFetch(string, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordCommit(int, time.Duration, error)             {}

// BasicMetricsCollector counts operations in memory.
// Useful for tests and debugging without external dependencies.
type BasicMetricsCollector struct {
	InternCount      atomic.Int64
	InternErrors     atomic.Int64
	InternTotalNanos atomic.Int64
	LookupCount      atomic.Int64
	LookupMisses     atomic.Int64
	LookupErrors     atomic.Int64
	EdgeUpdateCount  atomic.Int64
	EdgeUpdateEdges  atomic.Int64
	EdgeUpdateErrors atomic.Int64
	EdgeFetchCount   atomic.Int64
	EdgeFetchMisses  atomic.Int64
	EdgeFetchErrors  atomic.Int64
	CommitCount      atomic.Int64
	CommitWrites     atomic.Int64
	CommitErrors     atomic.Int64
}

// RecordIntern implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIntern(_ string, duration time.Duration, err error) {
	b.InternCount.Add(1)
	b.InternTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InternErrors.Add(1)
	}
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(_ string, found bool, _ time.Duration, err error) {
	b.LookupCount.Add(1)
	switch {
	case err != nil:
		b.LookupErrors.Add(1)
	case !found:
		b.LookupMisses.Add(1)
	}
}

// RecordEdgeUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEdgeUpdate(_ string, edges int, _ time.Duration, err error) {
	b.EdgeUpdateCount.Add(1)
	if err != nil {
		b.EdgeUpdateErrors.Add(1)
		return
	}
	b.EdgeUpdateEdges.Add(int64(edges))
}

// RecordEdgeFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEdgeFetch(_ string, found bool, _ time.Duration, err error) {
	b.EdgeFetchCount.Add(1)
	switch {
	case err != nil:
		b.EdgeFetchErrors.Add(1)
	case !found:
		b.EdgeFetchMisses.Add(1)
	}
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(pending int, _ time.Duration, err error) {
	b.CommitCount.Add(1)
	if err != nil {
		b.CommitErrors.Add(1)
		return
	}
	b.CommitWrites.Add(int64(pending))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		InternCount:      b.InternCount.Load(),
		InternErrors:     b.InternErrors.Load(),
		LookupCount:      b.LookupCount.Load(),
		LookupMisses:     b.LookupMisses.Load(),
		LookupErrors:     b.LookupErrors.Load(),
		EdgeUpdateCount:  b.EdgeUpdateCount.Load(),
		EdgeUpdateEdges:  b.EdgeUpdateEdges.Load(),
		EdgeUpdateErrors: b.EdgeUpdateErrors.Load(),
		EdgeFetchCount:   b.EdgeFetchCount.Load(),
		EdgeFetchMisses:  b.EdgeFetchMisses.Load(),
		EdgeFetchErrors:  b.EdgeFetchErrors.Load(),
		CommitCount:      b.CommitCount.Load(),
		CommitWrites:     b.CommitWrites.Load(),
		CommitErrors:     b.CommitErrors.Load(),
	}
	if s.InternCount > 0 {
		s.InternAvgNanos = b.InternTotalNanos.Load() / s.InternCount
	}
	return s
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InternCount      int64
	InternErrors     int64
	InternAvgNanos   int64
	LookupCount      int64
	LookupMisses     int64
	LookupErrors     int64
	EdgeUpdateCount  int64
	EdgeUpdateEdges  int64
	EdgeUpdateErrors int64
	EdgeFetchCount   int64
	EdgeFetchMisses  int64
	EdgeFetchErrors  int64
	CommitCount      int64
	CommitWrites     int64
	CommitErrors     int64
}
