package probe

import (
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/doridoridoriand/omniping/internal/config"
)

// Result captures a single echo attempt made by a Pinger backend.
type Result struct {
	RTT     time.Duration
	Success bool
	// Unreachable is set when the network reported the destination unreachable,
	// as opposed to the echo simply not coming back in time.
	Unreachable bool
	Error       error
}

// Pinger sends a single echo request and returns the result.
type Pinger interface {
	Ping(ctx context.Context, addr string, timeout time.Duration) Result
}

// NewPinger returns the backend for mode. The raw ICMP backend falls back to the
// system ping command when the process may not open raw sockets.
func NewPinger(mode config.PingMode) Pinger {
	external := NewExternalPinger()
	if mode != config.PingModeICMP {
		return external
	}
	return NewFallbackPinger(NewICMPPinger(), external)
}

// FallbackPinger tries primary first and retries with secondary on permission errors.
type FallbackPinger struct {
	primary   Pinger
	secondary Pinger
}

func NewFallbackPinger(primary, secondary Pinger) *FallbackPinger {
	return &FallbackPinger{primary: primary, secondary: secondary}
}

func (p *FallbackPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	result := p.primary.Ping(ctx, addr, timeout)
	if result.Success || result.Unreachable || !isPermissionError(result.Error) {
		return result
	}
	return p.secondary.Ping(ctx, addr, timeout)
}

func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "operation not permitted") || strings.Contains(msg, "permission denied")
}
