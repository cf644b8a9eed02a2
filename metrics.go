package veritas

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    retrieveCounter   prometheus.Counter
//	    retrieveHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordRetrieve(k int, duration time.Duration, err error) {
//	    p.retrieveCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordOpen is called after each artifact open attempt.
	RecordOpen(duration time.Duration, err error)

	// RecordRetrieve is called after each retrieval query.
	// k is the number of results requested, duration is the time taken,
	// err is nil if successful.
	RecordRetrieve(k int, duration time.Duration, err error)

	// RecordFetch is called after each batch fetch.
	// requested is the number of IDs attempted, failed is the number that
	// produced a per-ID error.
	RecordFetch(requested, failed int, duration time.Duration)

	// RecordCommit is called after each build commit attempt.
	RecordCommit(chunks int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordOpen(time.Duration, error)          {}
func (NoopMetricsCollector) RecordRetrieve(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordFetch(int, int, time.Duration)      {}
func (NoopMetricsCollector) RecordCommit(int, time.Duration, error)   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	OpenCount          atomic.Int64
	OpenErrors         atomic.Int64
	RetrieveCount      atomic.Int64
	RetrieveErrors     atomic.Int64
	RetrieveTotalNanos atomic.Int64
	FetchCount         atomic.Int64
	FetchItems         atomic.Int64
	FetchFailed        atomic.Int64
	CommitCount        atomic.Int64
	CommitErrors       atomic.Int64
	CommitChunks       atomic.Int64
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(duration time.Duration, err error) {
	b.OpenCount.Add(1)
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordRetrieve implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRetrieve(k int, duration time.Duration, err error) {
	b.RetrieveCount.Add(1)
	b.RetrieveTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RetrieveErrors.Add(1)
	}
}

// RecordFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFetch(requested, failed int, duration time.Duration) {
	b.FetchCount.Add(1)
	b.FetchItems.Add(int64(requested))
	b.FetchFailed.Add(int64(failed))
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(chunks int, duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitChunks.Add(int64(chunks))
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		OpenCount:        b.OpenCount.Load(),
		OpenErrors:       b.OpenErrors.Load(),
		RetrieveCount:    b.RetrieveCount.Load(),
		RetrieveErrors:   b.RetrieveErrors.Load(),
		RetrieveAvgNanos: b.getAvgRetrieveNanos(),
		FetchCount:       b.FetchCount.Load(),
		FetchItems:       b.FetchItems.Load(),
		FetchFailed:      b.FetchFailed.Load(),
		CommitCount:      b.CommitCount.Load(),
		CommitErrors:     b.CommitErrors.Load(),
		CommitChunks:     b.CommitChunks.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgRetrieveNanos() int64 {
	count := b.RetrieveCount.Load()
	if count == 0 {
		return 0
	}
	return b.RetrieveTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	OpenCount        int64
	OpenErrors       int64
	RetrieveCount    int64
	RetrieveErrors   int64
	RetrieveAvgNanos int64
	FetchCount       int64
	FetchItems       int64
	FetchFailed      int64
	CommitCount      int64
	CommitErrors     int64
	CommitChunks     int64
}
