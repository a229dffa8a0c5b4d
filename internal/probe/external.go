package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

var (
	timePattern        = regexp.MustCompile(`time[=<]([0-9.]+)\s*ms`)
	// Any ICMP error reply in place of an echo reply, e.g. destination unreachable or
	// time to live exceeded.
	unreachablePattern = regexp.MustCompile(`(?im)destination(\s+\w+)?\s+unreachable|time to live exceeded|^from\s+\S+(\s+\(\S+\))?\s+icmp_seq=\d+\s+[a-z]`)
)

// ErrUnreachable marks an echo answered by an ICMP error instead of a reply.
var ErrUnreachable = errors.New("destination unreachable")

// CommandRunner runs name with args and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ExternalPinger invokes the system ping command for environments without raw socket access.
type ExternalPinger struct {
	run CommandRunner
}

// NewExternalPinger returns a ping implementation that shells out to ping.
func NewExternalPinger() *ExternalPinger {
	return &ExternalPinger{run: execRunner}
}

// NewExternalPingerWithRunner uses run instead of os/exec.
func NewExternalPingerWithRunner(run CommandRunner) *ExternalPinger {
	return &ExternalPinger{run: run}
}

// Ping runs the system ping command and parses the RTT from its output.
func (p *ExternalPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	if err := ctx.Err(); err != nil {
		return Result{Error: err}
	}

	start := time.Now()
	out, err := p.run(ctx, "ping", pingArgs(addr, timeout)...)
	elapsed := time.Since(start)

	rtt := parseRTT(out)
	if err != nil || rtt == 0 {
		// Some platforms exit 0 on an ICMP unreachable reply, so check the text either way.
		if unreachablePattern.Match(out) {
			return Result{Unreachable: true, Error: ErrUnreachable}
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Error: fmt.Errorf("ping timeout: %w", ctxErr)}
		}
		return Result{Error: fmt.Errorf("external ping failed: %w", err)}
	}

	if rtt == 0 {
		rtt = elapsed
	}
	return Result{Success: true, RTT: rtt}
}

func pingArgs(addr string, timeout time.Duration) []string {
	switch runtime.GOOS {
	case "darwin":
		timeoutMs := maxInt(100, int(timeout.Milliseconds()))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutMs), addr}
	default:
		timeoutSec := maxInt(1, int(timeout.Seconds()+0.5))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutSec), addr}
	}
}

func parseRTT(output []byte) time.Duration {
	matches := timePattern.FindSubmatch(output)
	if len(matches) < 2 {
		return 0
	}
	value, err := strconv.ParseFloat(string(matches[1]), 64)
	if err != nil {
		return 0
	}
	return time.Duration(value * float64(time.Millisecond))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
