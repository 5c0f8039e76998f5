package completion

import (
	"sync"
	"time"

	"github.com/upb/nimbus-copilot/services/providers"
)

type providerCounters struct {
	attempts       int64
	successes      int64
	failures       int64
	meanLatency    float64 // nanoseconds, running mean over every attempt
	failuresByKind map[providers.ErrorKind]int64
}

func (c *providerCounters) observe(latency time.Duration) {
	c.attempts++
	c.meanLatency += (float64(latency) - c.meanLatency) / float64(c.attempts)
}

// StatsAggregator holds the router counters. A single mutex guards every
// field, so snapshots are never torn and Reset cannot interleave with an
// update.
type StatsAggregator struct {
	mu        sync.Mutex
	total     int64
	degraded  int64
	rejected  int64
	cancelled int64
	providers map[providers.ID]*providerCounters
}

// NewStatsAggregator creates an empty aggregator
func NewStatsAggregator() *StatsAggregator {
	return &StatsAggregator{
		providers: make(map[providers.ID]*providerCounters),
	}
}

// counters must be called with mu held
func (s *StatsAggregator) counters(id providers.ID) *providerCounters {
	c, ok := s.providers[id]
	if !ok {
		c = &providerCounters{failuresByKind: make(map[providers.ErrorKind]int64)}
		s.providers[id] = c
	}
	return c
}

// RecordSuccess records a successful attempt
func (s *StatsAggregator) RecordSuccess(id providers.ID, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counters(id)
	c.observe(latency)
	c.successes++
}

// RecordFailure records a failed attempt of the given kind
func (s *StatsAggregator) RecordFailure(id providers.ID, kind providers.ErrorKind, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counters(id)
	c.observe(latency)
	c.failures++
	c.failuresByKind[kind]++
}

// RecordCall counts one Complete call with its outcome
func (s *StatsAggregator) RecordCall(outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	switch outcome {
	case OutcomeDegraded:
		s.degraded++
	case OutcomeRejected:
		s.rejected++
	case OutcomeCancelled:
		s.cancelled++
	}
}

// Snapshot copies every counter under one lock
func (s *StatsAggregator) Snapshot() RouterStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := RouterStats{
		TotalCalls:     s.total,
		DegradedCalls:  s.degraded,
		RejectedCalls:  s.rejected,
		CancelledCalls: s.cancelled,
		Providers:      make(map[providers.ID]ProviderStats, len(s.providers)),
	}

	for id, c := range s.providers {
		mean := time.Duration(c.meanLatency)
		ps := ProviderStats{
			Attempts:      c.attempts,
			Successes:     c.successes,
			Failures:      c.failures,
			MeanLatency:   mean,
			MeanLatencyMs: float64(mean) / float64(time.Millisecond),
		}
		if len(c.failuresByKind) > 0 {
			ps.FailuresByKind = make(map[providers.ErrorKind]int64, len(c.failuresByKind))
			for kind, n := range c.failuresByKind {
				ps.FailuresByKind[kind] = n
			}
		}
		stats.Providers[id] = ps
	}

	return stats
}

// Reset zeroes every counter
func (s *StatsAggregator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = 0
	s.degraded = 0
	s.rejected = 0
	s.cancelled = 0
	s.providers = make(map[providers.ID]*providerCounters)
}
