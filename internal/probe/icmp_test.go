package probe

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

func TestResolveIPLiteral(t *testing.T) {
	addr, err := resolveIP(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("expected valid IP, got error: %v", err)
	}
	if addr.IP.To4() == nil {
		t.Fatalf("expected IPv4 address, got %v", addr.IP)
	}
	if _, err := resolveIP(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestFamilyFor(t *testing.T) {
	v4 := familyFor(net.ParseIP("127.0.0.1"))
	if v4.network != "ip4:icmp" || v4.v6 || v4.unreachable != ipv4.ICMPTypeDestinationUnreachable {
		t.Fatalf("unexpected ipv4 family: %+v", v4)
	}
	v6 := familyFor(net.ParseIP("2001:db8::1"))
	if v6.network != "ip6:ipv6-icmp" || !v6.v6 || v6.unreachable != ipv6.ICMPTypeDestinationUnreachable {
		t.Fatalf("unexpected ipv6 family: %+v", v6)
	}
}

func quotedEcho(headerLen int, id, seq uint16) []byte {
	data := make([]byte, headerLen+8)
	if headerLen != ipv6.HeaderLen {
		data[0] = 0x40 | byte(headerLen/4)
	}
	binary.BigEndian.PutUint16(data[headerLen+4:], id)
	binary.BigEndian.PutUint16(data[headerLen+6:], seq)
	return data
}

func TestEmbeddedEchoMatches(t *testing.T) {
	if !embeddedEchoMatches(quotedEcho(20, 0x1234, 7), false, 0x1234, 7) {
		t.Fatalf("expected ipv4 quote to match")
	}
	if !embeddedEchoMatches(quotedEcho(24, 0x1234, 7), false, 0x1234, 7) {
		t.Fatalf("expected ipv4 quote with options to match")
	}
	if embeddedEchoMatches(quotedEcho(20, 0x1234, 8), false, 0x1234, 7) {
		t.Fatalf("expected other sequence not to match")
	}
	if !embeddedEchoMatches(quotedEcho(ipv6.HeaderLen, 9, 1), true, 9, 1) {
		t.Fatalf("expected ipv6 quote to match")
	}
	if embeddedEchoMatches([]byte{0x45, 0, 0}, false, 1, 1) {
		t.Fatalf("expected truncated quote not to match")
	}
}

func TestEffectiveDeadline(t *testing.T) {
	ctxDeadline := time.Now().Add(50 * time.Millisecond)
	ctx, cancel := context.WithDeadline(context.Background(), ctxDeadline)
	defer cancel()
	if deadline := effectiveDeadline(ctx, time.Second); !deadline.Equal(ctxDeadline) {
		t.Fatalf("expected context deadline %v, got %v", ctxDeadline, deadline)
	}

	start := time.Now()
	deadline := effectiveDeadline(context.Background(), 25*time.Millisecond)
	if deadline.Before(start) || deadline.After(start.Add(75*time.Millisecond)) {
		t.Fatalf("expected deadline within timeout window, got %v", deadline)
	}
}

func TestICMPPingerContextCancellation(t *testing.T) {
	pinger := NewICMPPinger()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := pinger.Ping(ctx, "127.0.0.1", time.Second)
	if result.Success || result.Error == nil {
		t.Fatalf("expected failure due to cancelled context")
	}
}
