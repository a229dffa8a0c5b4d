package engine

import (
	"context"
	"time"
)

const (
	maxTimeout = 2 * time.Second
	paceMargin = 120 * time.Millisecond
)

// Timing is derived from the configured interval when polling starts.
type Timing struct {
	Interval time.Duration
	// Timeout bounds every probe of a tick.
	Timeout time.Duration
	// Pace is how long the pacer holds a tick open so fast and slow ticks last about the same.
	Pace time.Duration
	// Delay is the gap between the end of one tick and the start of the next.
	Delay time.Duration
}

// DeriveTiming returns the timing for interval: half the interval up to 4s, 2s above that.
func DeriveTiming(interval time.Duration) Timing {
	timeout := maxTimeout
	if interval <= 2*maxTimeout {
		timeout = interval / 2
	}
	return Timing{
		Interval: interval,
		Timeout:  timeout,
		Pace:     nonNegative(timeout - paceMargin),
		Delay:    nonNegative(interval - timeout),
	}
}

// batchDeadline bounds a whole tick: one timeout per wave of probes plus one for slack.
func (t Timing) batchDeadline(targets int, maxConcurrency int64) time.Duration {
	waves := int64(1)
	if maxConcurrency > 0 && targets > 0 {
		waves = (int64(targets) + maxConcurrency - 1) / maxConcurrency
	}
	return t.Timeout*time.Duration(waves) + t.Timeout
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// sleepContext waits for d or until ctx is done. It reports whether the full wait elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
