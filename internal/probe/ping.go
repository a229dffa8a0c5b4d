package probe

import (
	"context"
	"time"

	"github.com/jmhodges/clock"

	"github.com/doridoridoriand/omniping/internal/config"
)

// PingProber checks reachability with a single ICMP echo.
type PingProber struct {
	pinger Pinger
	clock  clock.Clock
}

func NewPingProber(pinger Pinger, clk clock.Clock) *PingProber {
	return &PingProber{pinger: pinger, clock: clk}
}

func (p *PingProber) Probe(ctx context.Context, target config.Target, timeout time.Duration) Outcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := p.pinger.Ping(ctx, target.Host, timeout)
	out := Outcome{ObservedAt: p.clock.Now(), Err: res.Error}
	switch {
	case res.Success:
		out.Good = true
		out.Status = StatusGood
		out.RTT = res.RTT
	case res.Unreachable:
		out.Status = StatusUnreachable
	default:
		out.Status = StatusTimeOut
	}
	return out
}
