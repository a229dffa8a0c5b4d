package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"github.com/doridoridoriand/omniping/internal/config"
)

func hostOf(rawURL string) string {
	u, _ := url.Parse(rawURL)
	return u.Host
}

func TestStatusLabel(t *testing.T) {
	cases := map[int]string{
		200: "Good (200)",
		204: "Good (204)",
		301: "Redir (301)",
		401: "Not Auth (401)",
		403: "Forbidden (403)",
		504: "GW Timeout (504)",
		418: "Unknown",
		299: "Unknown",
	}
	for code, want := range cases {
		if got := StatusLabel(code); got != want {
			t.Fatalf("StatusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestHTTPProberStatusCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "/teapot":
			w.WriteHeader(http.StatusTeapot)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	fc := clock.NewFake()
	prober := NewHTTPProber(fc)
	host := hostOf(srv.URL)

	cases := []struct {
		path   string
		status string
	}{
		{"", "Good (200)"},
		{"/forbidden", "Forbidden (403)"},
		{"/teapot", StatusUnknown},
	}
	for _, tc := range cases {
		out := prober.Probe(context.Background(), config.Target{Host: host + tc.path, Kind: config.KindHTTP}, time.Second)
		if !out.Good || out.Status != tc.status {
			t.Fatalf("path %q: unexpected outcome %+v", tc.path, out)
		}
		if out.RTT <= 0 {
			t.Fatalf("path %q: expected measured RTT", tc.path)
		}
		if !out.ObservedAt.Equal(fc.Now()) {
			t.Fatalf("path %q: expected clock timestamp", tc.path)
		}
	}
}

func TestHTTPProberHTTPSSkipsVerification(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	prober := NewHTTPProber(clock.New())
	out := prober.Probe(context.Background(), config.Target{Host: hostOf(srv.URL), Kind: config.KindHTTPS}, time.Second)
	if !out.Good || out.Status != "Good (204)" {
		t.Fatalf("unexpected outcome %+v (err %v)", out, out.Err)
	}
}

func TestHTTPProberTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	prober := NewHTTPProber(clock.New())
	out := prober.Probe(context.Background(), config.Target{Host: hostOf(srv.URL), Kind: config.KindHTTP}, 50*time.Millisecond)
	if out.Good || out.Status != StatusTimeOut || out.RTT != 0 {
		t.Fatalf("expected timeout, got %+v", out)
	}
}

func TestHTTPProberRedirectLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/a", http.StatusFound)
	}))
	defer srv.Close()

	prober := NewHTTPProber(clock.New())
	out := prober.Probe(context.Background(), config.Target{Host: hostOf(srv.URL), Kind: config.KindHTTP}, time.Second)
	if out.Good || out.Status != StatusRedirectLoop {
		t.Fatalf("expected redirect loop, got %+v", out)
	}
}

func TestHTTPProberFollowsRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/login", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	prober := NewHTTPProber(clock.New())
	out := prober.Probe(context.Background(), config.Target{Host: hostOf(srv.URL), Kind: config.KindHTTP}, time.Second)
	if !out.Good || out.Status != "Not Auth (401)" {
		t.Fatalf("expected final response label, got %+v", out)
	}
}

func TestHTTPProberConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	prober := NewHTTPProber(clock.New())
	out := prober.Probe(context.Background(), config.Target{Host: addr, Kind: config.KindHTTP}, time.Second)
	if out.Good || out.Status != StatusUnreachable || out.Err == nil {
		t.Fatalf("expected unreachable, got %+v", out)
	}
}

func TestCheckRedirectLimit(t *testing.T) {
	var via []*http.Request
	for i := 0; i < maxRedirects; i++ {
		req, _ := http.NewRequest(http.MethodGet, "http://example.com/"+strings.Repeat("x", i+1), nil)
		via = append(via, req)
	}
	next, _ := http.NewRequest(http.MethodGet, "http://example.com/final", nil)
	if err := checkRedirect(next, via); !errors.Is(err, ErrRedirectLoop) {
		t.Fatalf("expected redirect limit error, got %v", err)
	}
	if err := checkRedirect(next, via[:3]); err != nil {
		t.Fatalf("expected short chain allowed, got %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"redirect loop", &url.Error{Op: "Get", URL: "http://x", Err: ErrRedirectLoop}, StatusRedirectLoop},
		{"dns not found", &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Err: &net.DNSError{Err: "no such host", Name: "x", IsNotFound: true}}}, StatusBadAddress},
		{"dns timeout", &net.DNSError{Err: "i/o timeout", Name: "x", IsTimeout: true}, StatusTimeOut},
		{"deadline", &url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded}, StatusTimeOut},
		{"refused", &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}, StatusUnreachable},
		{"other", errors.New("boom"), StatusUnreachable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyError(tc.err); got != tc.want {
				t.Fatalf("classifyError(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
