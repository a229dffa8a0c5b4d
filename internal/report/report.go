// Package report holds the per-target statistics accumulated by the probe engine.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/doridoridoriand/omniping/internal/config"
)

// Unset is rendered for any value that has not been observed yet.
const Unset = "--"

// TargetStats accumulates the outcomes of one active target. Position is the
// target's index in the active ordering and is fixed until the report is rebuilt.
type TargetStats struct {
	Position    int
	Host        string
	Description string
	Kind        config.Kind

	Total     int
	Successes int

	Good           bool
	CurrentStatus  string
	PreviousStatus string
	CurrentRTT     time.Duration

	LastGoodAt    time.Time
	LastBadAt     time.Time
	LastBadStatus string
}

func newTargetStats(pos int, target config.Target) TargetStats {
	return TargetStats{
		Position:       pos,
		Host:           target.Host,
		Description:    target.Description,
		Kind:           target.Kind,
		CurrentStatus:  Unset,
		PreviousStatus: Unset,
		LastBadStatus:  Unset,
	}
}

// Target returns the configuration the stats were built from.
func (s TargetStats) Target() config.Target {
	return config.Target{Host: s.Host, Description: s.Description, Kind: s.Kind, Active: true}
}

// SuccessPercent renders Successes/Total as "99.50 %".
func (s TargetStats) SuccessPercent() string {
	if s.Total == 0 {
		return "0.00 %"
	}
	return fmt.Sprintf("%.2f %%", float64(s.Successes)/float64(s.Total)*100)
}

// RTT renders CurrentRTT with FormatRTT.
func (s TargetStats) RTT() string {
	return FormatRTT(s.CurrentRTT)
}

// FormatRTT renders d in milliseconds with at most three decimals, e.g. "12 ms" or
// "0.045 ms". Zero means unmeasured.
func FormatRTT(d time.Duration) string {
	if d <= 0 {
		return Unset
	}
	ms := strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 3, 64)
	ms = strings.TrimRight(ms, "0")
	ms = strings.TrimSuffix(ms, ".")
	return ms + " ms"
}

// Report is the engine's view of a run.
type Report struct {
	StartedAt        time.Time
	LastTickAt       time.Time
	TickCount        int
	LastTickDuration time.Duration
	Targets          []TargetStats
}

// New builds an empty report with one TargetStats per target, in order.
func New(targets []config.Target) Report {
	stats := make([]TargetStats, 0, len(targets))
	for i, target := range targets {
		stats = append(stats, newTargetStats(i, target))
	}
	return Report{Targets: stats}
}

// Clone returns a deep copy.
func (r Report) Clone() Report {
	clone := r
	clone.Targets = append([]TargetStats(nil), r.Targets...)
	return clone
}
