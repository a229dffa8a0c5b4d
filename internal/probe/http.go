package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jmhodges/clock"

	"github.com/doridoridoriand/omniping/internal/config"
)

const maxRedirects = 10

// ErrRedirectLoop is returned when a redirect chain revisits a URL or grows too long.
var ErrRedirectLoop = errors.New("redirect loop")

var statusLabels = map[int]string{
	200: "Good",
	201: "Good",
	202: "Good",
	204: "Good",
	300: "Redir",
	301: "Redir",
	302: "Redir",
	307: "Redir",
	308: "Redir",
	400: "Bad",
	401: "Not Auth",
	403: "Forbidden",
	404: "Not Found",
	405: "Bad Method",
	500: "Server Error",
	502: "Bad Gateway",
	503: "Unavailable",
	504: "GW Timeout",
}

// StatusLabel renders an HTTP status code, e.g. "Forbidden (403)".
func StatusLabel(code int) string {
	label, ok := statusLabels[code]
	if !ok {
		return StatusUnknown
	}
	return fmt.Sprintf("%s (%d)", label, code)
}

// HTTPProber issues one GET per check. Any HTTP response counts as reachable.
type HTTPProber struct {
	client *http.Client
	clock  clock.Clock
}

func NewHTTPProber(clk clock.Clock) *HTTPProber {
	transport := &http.Transport{
		DialContext:        (&net.Dialer{}).DialContext,
		TLSClientConfig:    &tls.Config{InsecureSkipVerify: true},
		DisableKeepAlives:  true,
		DisableCompression: true,
	}
	return &HTTPProber{
		client: &http.Client{
			Transport:     transport,
			CheckRedirect: checkRedirect,
		},
		clock: clk,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, target config.Target, timeout time.Duration) Outcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL(target), nil)
	if err != nil {
		return Outcome{Status: StatusBadAddress, ObservedAt: p.clock.Now(), Err: err}
	}
	req.Header.Set("User-Agent", "omniping")

	start := time.Now()
	resp, err := p.client.Do(req)
	rtt := time.Since(start)
	if err != nil {
		return Outcome{Status: classifyError(err), ObservedAt: p.clock.Now(), Err: err}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	return Outcome{
		Good:       true,
		Status:     StatusLabel(resp.StatusCode),
		RTT:        rtt,
		ObservedAt: p.clock.Now(),
	}
}

func targetURL(target config.Target) string {
	scheme := "http"
	if target.Kind == config.KindHTTPS {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimPrefix(target.Host, "/")
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return ErrRedirectLoop
	}
	next := req.URL.String()
	for _, prev := range via {
		if prev.URL.String() == next {
			return ErrRedirectLoop
		}
	}
	return nil
}

func classifyError(err error) string {
	if errors.Is(err, ErrRedirectLoop) {
		return StatusRedirectLoop
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return StatusBadAddress
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeOut
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeOut
	}
	return StatusUnreachable
}
