package probe

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const echoData = "omniping"

// ICMPPinger sends ICMP echo requests over raw sockets. It needs CAP_NET_RAW or root.
type ICMPPinger struct {
	id  int
	seq uint32
}

func NewICMPPinger() *ICMPPinger {
	return &ICMPPinger{id: os.Getpid() & 0xffff}
}

type icmpFamily struct {
	network     string
	protocol    int
	request     icmp.Type
	reply       icmp.Type
	unreachable icmp.Type
	v6          bool
}

func (p *ICMPPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	if err := ctx.Err(); err != nil {
		return Result{Error: err}
	}

	dst, err := resolveIP(ctx, addr)
	if err != nil {
		return Result{Error: err}
	}
	fam := familyFor(dst.IP)

	conn, err := icmp.ListenPacket(fam.network, "")
	if err != nil {
		return Result{Error: err}
	}
	defer conn.Close()

	seq := int(atomic.AddUint32(&p.seq, 1) & 0xffff)
	msg := icmp.Message{
		Type: fam.request,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: []byte(echoData)},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return Result{Error: err}
	}
	if err := conn.SetDeadline(effectiveDeadline(ctx, timeout)); err != nil {
		return Result{Error: err}
	}

	start := time.Now()
	if _, err := conn.WriteTo(payload, dst); err != nil {
		return Result{Error: err}
	}

	buf := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return Result{Error: err}
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return Result{Error: fmt.Errorf("ping timeout: %w", err)}
			}
			return Result{Error: err}
		}

		reply, err := icmp.ParseMessage(fam.protocol, buf[:n])
		if err != nil {
			continue
		}
		switch reply.Type {
		case fam.reply:
			body, ok := reply.Body.(*icmp.Echo)
			if ok && body.ID == p.id && body.Seq == seq {
				return Result{Success: true, RTT: time.Since(start)}
			}
		case fam.unreachable:
			body, ok := reply.Body.(*icmp.DstUnreach)
			if ok && embeddedEchoMatches(body.Data, fam.v6, p.id, seq) {
				return Result{Unreachable: true, Error: ErrUnreachable}
			}
		}
	}
}

func resolveIP(ctx context.Context, addr string) (*net.IPAddr, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty address")
	}
	if ip := net.ParseIP(addr); ip != nil {
		return &net.IPAddr{IP: ip}, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, addr)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no address for %s", addr)
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return &net.IPAddr{IP: a.IP}, nil
		}
	}
	return &addrs[0], nil
}

func familyFor(ip net.IP) icmpFamily {
	if ip.To4() != nil {
		return icmpFamily{
			network:     "ip4:icmp",
			protocol:    ipv4.ICMPTypeEcho.Protocol(),
			request:     ipv4.ICMPTypeEcho,
			reply:       ipv4.ICMPTypeEchoReply,
			unreachable: ipv4.ICMPTypeDestinationUnreachable,
		}
	}
	return icmpFamily{
		network:     "ip6:ipv6-icmp",
		protocol:    ipv6.ICMPTypeEchoRequest.Protocol(),
		request:     ipv6.ICMPTypeEchoRequest,
		reply:       ipv6.ICMPTypeEchoReply,
		unreachable: ipv6.ICMPTypeDestinationUnreachable,
		v6:          true,
	}
}

// embeddedEchoMatches reports whether the datagram quoted in an ICMP error is our echo.
// The quote is the original IP header followed by at least the first 8 bytes of the
// ICMP message: type, code, checksum, id, seq.
func embeddedEchoMatches(data []byte, v6 bool, id, seq int) bool {
	offset := ipv6.HeaderLen
	if !v6 {
		if len(data) < ipv4.HeaderLen {
			return false
		}
		offset = int(data[0]&0x0f) * 4
	}
	if len(data) < offset+8 {
		return false
	}
	echo := data[offset : offset+8]
	return int(binary.BigEndian.Uint16(echo[4:6])) == id && int(binary.BigEndian.Uint16(echo[6:8])) == seq
}

func effectiveDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}
