// Package probe runs single health checks against a target and reduces them to an Outcome.
package probe

import (
	"context"
	"time"

	"github.com/doridoridoriand/omniping/internal/config"
)

// Status labels shared by the executors.
const (
	StatusGood         = "Good"
	StatusTimeOut      = "Time Out"
	StatusUnreachable  = "Unreachable"
	StatusBadAddress   = "Bad Address"
	StatusRedirectLoop = "Redirect Loop"
	StatusUnknown      = "Unknown"
)

// Outcome is the normalized result of one check. RTT is zero when it was not measured.
// Err carries the underlying failure for logging only.
type Outcome struct {
	Good       bool
	Status     string
	RTT        time.Duration
	ObservedAt time.Time
	Err        error
}

// Prober executes one check. Implementations never return errors; failures are
// encoded in the Outcome.
type Prober interface {
	Probe(ctx context.Context, target config.Target, timeout time.Duration) Outcome
}

// Set dispatches a target to the executor for its kind.
type Set struct {
	Ping Prober
	HTTP Prober
}

func (s Set) Probe(ctx context.Context, target config.Target, timeout time.Duration) Outcome {
	switch target.Kind {
	case config.KindPing:
		return s.Ping.Probe(ctx, target, timeout)
	case config.KindHTTP, config.KindHTTPS:
		return s.HTTP.Probe(ctx, target, timeout)
	default:
		return Outcome{Status: StatusUnknown}
	}
}
