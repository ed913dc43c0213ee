package proxy

import (
	"sync"
	"time"

	"github.com/clawinfra/clawrouter/internal/catalog"
)

// Stats aggregates routing counters since process start. Increments are
// cheap and monotonic; cross-counter consistency is not guaranteed.
type Stats struct {
	mu              sync.Mutex
	byTier          map[catalog.Tier]int64
	byModel         map[string]int64
	totalRequests   int64
	totalFailures   int64
	totalSavingsUSD float64
	started         time.Time
}

// StatsSnapshot is the JSON shape served by /stats.
type StatsSnapshot struct {
	TotalRequests   int64            `json:"totalRequests"`
	TotalFailures   int64            `json:"totalFailures"`
	ByTier          map[string]int64 `json:"byTier"`
	ByModel         map[string]int64 `json:"byModel"`
	TotalSavingsUSD float64          `json:"totalSavingsUSD"`
}

// NewStats creates an empty counter set.
func NewStats() *Stats {
	return &Stats{
		byTier:  make(map[catalog.Tier]int64),
		byModel: make(map[string]int64),
		started: time.Now(),
	}
}

// Record counts one completed request and its realised savings. Requests
// that never produce a completion go through RecordFailure instead, so the
// savings aggregate only reflects answers that were actually served.
func (s *Stats) Record(tier catalog.Tier, model string, savingsUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRequests++
	s.byTier[tier]++
	s.byModel[model]++
	s.totalSavingsUSD += savingsUSD
}

// RecordFailure counts a request that failed before completing.
func (s *Stats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalFailures++
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTier := make(map[string]int64, len(s.byTier))
	for tier, n := range s.byTier {
		byTier[tier.String()] = n
	}
	byModel := make(map[string]int64, len(s.byModel))
	for model, n := range s.byModel {
		byModel[model] = n
	}
	return StatsSnapshot{
		TotalRequests:   s.totalRequests,
		TotalFailures:   s.totalFailures,
		ByTier:          byTier,
		ByModel:         byModel,
		TotalSavingsUSD: s.totalSavingsUSD,
	}
}

// Uptime reports seconds since the stats were created (process start).
func (s *Stats) Uptime() float64 {
	return time.Since(s.started).Seconds()
}
