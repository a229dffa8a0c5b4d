package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/doridoridoriand/omniping/internal/config"
	"github.com/doridoridoriand/omniping/internal/engine"
	"github.com/doridoridoriand/omniping/internal/report"
)

// ---- test helpers ----

type fakeEngine struct {
	mu      sync.Mutex
	report  report.Report
	running bool
	actions []string
}

func (f *fakeEngine) Report() report.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.report.Clone()
}

func (f *fakeEngine) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeEngine) Do(action string) (engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	switch action {
	case "start":
		f.running = true
		return engine.Result{Message: "Started Polling (4 secs)", Polling: true}, nil
	case "stop":
		f.running = false
		return engine.Result{Message: "Stopped Polling"}, nil
	default:
		return engine.Result{Polling: f.running}, engine.ErrInvalidAction
	}
}

func sampleConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Settings.Heading = "Lab"
	cfg.Targets = []config.Target{
		{Host: "10.0.0.1", Description: "router", Kind: config.KindPing, Active: true},
		{Host: "example.com", Description: "site", Kind: config.KindHTTPS, Active: false},
	}
	return cfg
}

func setupServer(t *testing.T, opts Options) (*httptest.Server, *fakeEngine, *config.Store) {
	t.Helper()
	eng := &fakeEngine{report: report.New(sampleConfig().Targets[:1])}
	store := config.NewStore("", sampleConfig())
	if opts.Clock == nil {
		opts.Clock = clock.NewFake()
	}
	if opts.ActionRate == 0 {
		// very high limits to avoid flakiness
		opts.ActionRate = rate.Inf
	}
	srv := NewServer(zap.NewNop(), eng, store, opts)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, eng, store
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, url, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

// ---- tests ----

func TestGetReport(t *testing.T) {
	ts, _, _ := setupServer(t, Options{})

	for _, path := range []string{"/omniping/engine", "/omniping/run"} {
		var got map[string]any
		if code := doJSON(t, http.MethodGet, ts.URL+path, "", &got); code != http.StatusOK {
			t.Fatalf("want 200, got %d", code)
		}
		if got["message"] != "Retrieved report (0)" || got["running"] != false || got["started"] != false {
			t.Fatalf("unexpected report: %v", got)
		}
		tests, ok := got["tests"].([]any)
		if !ok || len(tests) != 1 {
			t.Fatalf("expected one test row, got %v", got["tests"])
		}
		row := tests[0].(map[string]any)
		if row["host"] != "10.0.0.1" || row["status"] != report.Unset || row["success_percent"] != "0.00 %" {
			t.Fatalf("unexpected row: %v", row)
		}
		content, ok := got["content"].([]any)
		if !ok || len(content) != len(reportHelp) || content[0] != reportHelp[0] {
			t.Fatalf("expected help paragraphs, got %v", got["content"])
		}
	}
}

func TestEngineActions(t *testing.T) {
	ts, eng, _ := setupServer(t, Options{})

	var res engine.Result
	if code := doJSON(t, http.MethodPost, ts.URL+"/omniping/engine", `{"action":"start"}`, &res); code != http.StatusOK {
		t.Fatalf("want 200, got %d", code)
	}
	if res.Message != "Started Polling (4 secs)" || !res.Polling {
		t.Fatalf("unexpected result: %+v", res)
	}

	var errResp errorResponse
	if code := doJSON(t, http.MethodPost, ts.URL+"/omniping/run", `{"action":"restart_cp"}`, &errResp); code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", code)
	}
	if errResp.Status != http.StatusBadRequest || errResp.Message != "Invalid action requested" {
		t.Fatalf("unexpected error body: %+v", errResp)
	}

	if code := doJSON(t, http.MethodPost, ts.URL+"/omniping/engine", `not json`, &errResp); code != http.StatusBadRequest {
		t.Fatalf("want 400 on bad payload, got %d", code)
	}
	if len(eng.actions) != 2 {
		t.Fatalf("expected 2 dispatched actions, got %v", eng.actions)
	}
}

func TestEngineActionRateLimit(t *testing.T) {
	ts, _, _ := setupServer(t, Options{ActionRate: rate.Every(time.Hour), ActionBurst: 1})

	if code := doJSON(t, http.MethodPost, ts.URL+"/omniping/engine", `{"action":"stop"}`, nil); code != http.StatusOK {
		t.Fatalf("want 200, got %d", code)
	}
	var errResp errorResponse
	if code := doJSON(t, http.MethodPost, ts.URL+"/omniping/engine", `{"action":"stop"}`, &errResp); code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", code)
	}
	// reads are not limited
	if code := doJSON(t, http.MethodGet, ts.URL+"/omniping/engine", "", nil); code != http.StatusOK {
		t.Fatalf("want 200 for GET, got %d", code)
	}
}

func TestGetSetup(t *testing.T) {
	ts, _, _ := setupServer(t, Options{})

	var got setupResponse
	if code := doJSON(t, http.MethodGet, ts.URL+"/omniping/tests", "", &got); code != http.StatusOK {
		t.Fatalf("want 200, got %d", code)
	}
	if got.Message != "Set Up info retrieved" || got.Heading != "Lab" || got.Interval != 4 || len(got.Tests) != 2 {
		t.Fatalf("unexpected setup: %+v", got)
	}
	if got.Tests[1].Active || got.Tests[1].Kind != config.KindHTTPS {
		t.Fatalf("unexpected second test: %+v", got.Tests[1])
	}
}

func TestUpdateSetup(t *testing.T) {
	ts, _, store := setupServer(t, Options{})

	body, _ := json.Marshal(map[string]any{
		"interval": 2.5,
		"tests": []map[string]any{
			{"host": "10.0.0.1", "desc": "router", "test": "ping", "active": true},
		},
	})
	var got setupResponse
	if code := doJSON(t, http.MethodPost, ts.URL+"/omniping/setup", string(body), &got); code != http.StatusOK {
		t.Fatalf("want 200, got %d", code)
	}
	if got.Message != "Updated: Tests & Interval" || got.Interval != 2.5 {
		t.Fatalf("unexpected response: %+v", got)
	}
	if store.Interval() != 2500*time.Millisecond || !store.PendingChanges() {
		t.Fatalf("store not updated")
	}

	if code := doJSON(t, http.MethodPost, ts.URL+"/omniping/setup", `{"heading":"Lab"}`, &got); code != http.StatusOK {
		t.Fatalf("want 200, got %d", code)
	}
	if got.Message != "No changes made" {
		t.Fatalf("unexpected message: %q", got.Message)
	}
}

func TestUpdateSetupInvalid(t *testing.T) {
	ts, _, store := setupServer(t, Options{})

	cases := []string{
		`{"colour":"red"}`,
		`{"interval":2000}`,
		`{"tests":[{"host":"bad host!","desc":"x","test":"PING","active":true}]}`,
		`{"tests":[{"host":"example.com","desc":"x","test":"FTP","active":true}]}`,
	}
	for _, body := range cases {
		var errResp errorResponse
		if code := doJSON(t, http.MethodPost, ts.URL+"/omniping/setup", body, &errResp); code != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d", body, code)
		}
		if errResp.Message == "" {
			t.Fatalf("%s: expected validation message", body)
		}
	}
	if cfg := store.Config(); cfg.Settings.Colour != "#FFFFFF" || len(cfg.Targets) != 2 {
		t.Fatalf("rejected updates must leave the store unchanged: %+v", cfg)
	}
}

func TestPageInit(t *testing.T) {
	ts, eng, _ := setupServer(t, Options{Version: "1.2.3"})

	var got pageInitResponse
	for _, path := range []string{"/omniping/page_init", "/omniping/version"} {
		if code := doJSON(t, http.MethodGet, ts.URL+path, "", &got); code != http.StatusOK {
			t.Fatalf("want 200, got %d", code)
		}
		if got.Message != "OmniPing Alive" || got.Version != "1.2.3" || got.Heading != "Lab" || got.Running {
			t.Fatalf("unexpected page init: %+v", got)
		}
	}

	eng.Do("start")
	doJSON(t, http.MethodGet, ts.URL+"/omniping/page_init", "", &got)
	if got.Message != "OmniPing Alive and Polling" || !got.Running {
		t.Fatalf("unexpected page init while polling: %+v", got)
	}
}

func TestHealthzMetricsAndNotFound(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("omniping_polling 0\n"))
	})
	ts, _, _ := setupServer(t, Options{Metrics: metrics})

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Contains(body, []byte("omniping_polling")) {
		t.Fatalf("unexpected metrics body: %s", body)
	}

	var errResp errorResponse
	if code := doJSON(t, http.MethodGet, ts.URL+"/nope", "", &errResp); code != http.StatusNotFound || errResp.Status != http.StatusNotFound {
		t.Fatalf("want JSON 404, got %d %+v", code, errResp)
	}
	if code := doJSON(t, http.MethodDelete, ts.URL+"/omniping/engine", "", &errResp); code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", code)
	}
}

func TestRecovererReturns500(t *testing.T) {
	srv := NewServer(zap.NewNop(), panicEngine{}, config.NewStore("", sampleConfig()), Options{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/omniping/engine")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", resp.StatusCode)
	}
}

type panicEngine struct{}

func (panicEngine) Report() report.Report                    { panic("report exploded") }
func (panicEngine) IsRunning() bool                          { return false }
func (panicEngine) Do(action string) (engine.Result, error) { return engine.Result{}, nil }
