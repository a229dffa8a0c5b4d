package report

import (
	"sync"
	"time"

	"github.com/doridoridoriand/omniping/internal/config"
	"github.com/doridoridoriand/omniping/internal/probe"
)

// Store is a thread-safe holder for one Report. Writers take the lock only for the
// short merge; readers get a copy.
type Store struct {
	mu     sync.RWMutex
	report Report
}

// NewStore creates a store with a fresh report for targets.
func NewStore(targets []config.Target) *Store {
	return &Store{report: New(targets)}
}

// Snapshot returns a deep copy of the report.
func (s *Store) Snapshot() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report.Clone()
}

// Len returns the number of targets in the report.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.report.Targets)
}

// Targets returns the probe targets in position order.
func (s *Store) Targets() []config.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	targets := make([]config.Target, len(s.report.Targets))
	for i, stats := range s.report.Targets {
		targets[i] = stats.Target()
	}
	return targets
}

// BeginTick stamps StartedAt on the first tick of a run and bumps TickCount.
// It returns the new tick number.
func (s *Store) BeginTick(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report.StartedAt.IsZero() {
		s.report.StartedAt = now
	}
	s.report.TickCount++
	return s.report.TickCount
}

// Merge folds one outcome per position into the report and stamps the tick.
// outcomes[i] belongs to the target at position i; extra outcomes are ignored.
func (s *Store) Merge(outcomes []probe.Outcome, now time.Time, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range outcomes {
		if i >= len(s.report.Targets) {
			break
		}
		apply(&s.report.Targets[i], outcomes[i], now)
	}
	s.stamp(now, duration)
}

// Stamp records tick completion without touching target stats.
func (s *Store) Stamp(now time.Time, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(now, duration)
}

func (s *Store) stamp(now time.Time, duration time.Duration) {
	s.report.LastTickAt = now
	s.report.LastTickDuration = duration
}

func apply(stats *TargetStats, out probe.Outcome, now time.Time) {
	at := out.ObservedAt
	if at.IsZero() {
		at = now
	}

	stats.Total++
	if out.Good {
		stats.Successes++
		stats.LastGoodAt = at
	} else {
		stats.LastBadAt = at
		stats.LastBadStatus = out.Status
	}
	stats.PreviousStatus = stats.CurrentStatus
	stats.CurrentStatus = out.Status
	stats.CurrentRTT = out.RTT
	stats.Good = out.Good
}
