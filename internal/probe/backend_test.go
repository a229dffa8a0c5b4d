package probe

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/doridoridoriand/omniping/internal/config"
)

type stubPinger struct {
	result Result
	calls  int
	addrs  []string
}

func (s *stubPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	s.calls++
	s.addrs = append(s.addrs, addr)
	return s.result
}

func TestNewPingerSelectsBackend(t *testing.T) {
	if _, ok := NewPinger(config.PingModeExec).(*ExternalPinger); !ok {
		t.Fatalf("expected exec mode to use the external pinger")
	}
	if _, ok := NewPinger(config.PingModeICMP).(*FallbackPinger); !ok {
		t.Fatalf("expected icmp mode to use the fallback pinger")
	}
}

func TestFallbackPingerUsesPrimaryOnSuccess(t *testing.T) {
	primary := &stubPinger{result: Result{Success: true, RTT: 10 * time.Millisecond}}
	secondary := &stubPinger{result: Result{Success: true, RTT: 20 * time.Millisecond}}
	pinger := NewFallbackPinger(primary, secondary)

	result := pinger.Ping(context.Background(), "127.0.0.1", time.Second)
	if !result.Success || result.RTT != 10*time.Millisecond {
		t.Fatalf("expected primary result, got %+v", result)
	}
	if primary.calls != 1 || secondary.calls != 0 {
		t.Fatalf("expected primary called once and secondary not called, got %d/%d", primary.calls, secondary.calls)
	}
}

func TestFallbackPingerFallsBackOnPermissionError(t *testing.T) {
	for _, permErr := range []error{os.ErrPermission, syscall.EPERM, errors.New("listen ip4:icmp: socket: Operation Not Permitted")} {
		primary := &stubPinger{result: Result{Error: permErr}}
		secondary := &stubPinger{result: Result{Success: true, RTT: 25 * time.Millisecond}}
		pinger := NewFallbackPinger(primary, secondary)

		result := pinger.Ping(context.Background(), "10.0.0.1", time.Second)
		if !result.Success || result.RTT != 25*time.Millisecond {
			t.Fatalf("expected fallback result for %v, got %+v", permErr, result)
		}
		if primary.calls != 1 || secondary.calls != 1 || secondary.addrs[0] != "10.0.0.1" {
			t.Fatalf("expected both pingers called with the address, got %d/%d", primary.calls, secondary.calls)
		}
	}
}

func TestFallbackPingerKeepsOtherFailures(t *testing.T) {
	cases := []Result{
		{Error: errors.New("network down")},
		{Unreachable: true, Error: ErrUnreachable},
	}
	for _, primaryResult := range cases {
		primary := &stubPinger{result: primaryResult}
		secondary := &stubPinger{result: Result{Success: true}}
		pinger := NewFallbackPinger(primary, secondary)

		result := pinger.Ping(context.Background(), "127.0.0.1", time.Second)
		if result.Success || result.Error != primaryResult.Error {
			t.Fatalf("expected primary failure, got %+v", result)
		}
		if secondary.calls != 0 {
			t.Fatalf("expected secondary not called for %v", primaryResult.Error)
		}
	}
}

func TestIsPermissionError(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"os.ErrPermission", os.ErrPermission, true},
		{"syscall.EPERM", syscall.EPERM, true},
		{"syscall.EACCES", syscall.EACCES, true},
		{"mixed case operation not permitted", errors.New("Operation not PERMITTED"), true},
		{"mixed case permission denied", errors.New("Permission DENIED"), true},
		{"network unreachable", errors.New("network unreachable"), false},
		{"empty error", errors.New(""), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isPermissionError(tc.err); got != tc.want {
				t.Fatalf("isPermissionError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
