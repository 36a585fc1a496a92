// Package perf is the ATG's external performance-measurement sink: it
// records per-cycle start/stop durations and reports aggregate statistics
// via github.com/montanaflynn/stats, the one domain dependency in the
// teacher's go.mod that the teacher never actually wired to anything.
package perf

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// Sink accumulates start/stop latency samples and reports aggregate
// statistics on demand. Safe for concurrent use: many per-connector ATG
// drivers record into the same Sink.
type Sink struct {
	mu     sync.Mutex
	starts []float64 // nanoseconds
	stops  []float64 // nanoseconds
}

// NewSink builds an empty performance sink.
func NewSink() *Sink {
	return &Sink{}
}

// RecordStart logs the latency from "decided to start a transaction" to an
// Accepted StartTransaction response.
func (s *Sink) RecordStart(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, float64(latency))
}

// RecordStop logs the latency from "decided to stop a transaction" to the
// StopTransaction response.
func (s *Sink) RecordStop(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops = append(s.stops, float64(latency))
}

// Summary is the aggregate view of every sample recorded so far.
type Summary struct {
	StartCount       int
	MeanStartLatency time.Duration
	P95StartLatency  time.Duration
	StopCount        int
	MeanStopLatency  time.Duration
	P95StopLatency   time.Duration
}

// Report computes mean and 95th-percentile latencies over every sample
// recorded so far. Either half of the Summary is left zero if no samples of
// that kind have been recorded.
func (s *Sink) Report() (Summary, error) {
	s.mu.Lock()
	starts := append([]float64(nil), s.starts...)
	stops := append([]float64(nil), s.stops...)
	s.mu.Unlock()

	summary := Summary{StartCount: len(starts), StopCount: len(stops)}

	if len(starts) > 0 {
		mean, err := stats.Mean(starts)
		if err != nil {
			return Summary{}, err
		}
		p95, err := stats.Percentile(starts, 95)
		if err != nil {
			return Summary{}, err
		}
		summary.MeanStartLatency = time.Duration(mean)
		summary.P95StartLatency = time.Duration(p95)
	}

	if len(stops) > 0 {
		mean, err := stats.Mean(stops)
		if err != nil {
			return Summary{}, err
		}
		p95, err := stats.Percentile(stops, 95)
		if err != nil {
			return Summary{}, err
		}
		summary.MeanStopLatency = time.Duration(mean)
		summary.P95StopLatency = time.Duration(p95)
	}

	return summary, nil
}
