// Package httpapi serves the engine report, engine actions and the setup page over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmhodges/clock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/doridoridoriand/omniping/internal/config"
	"github.com/doridoridoriand/omniping/internal/engine"
	"github.com/doridoridoriand/omniping/internal/report"
)

// Engine is the part of *engine.Engine the API drives.
type Engine interface {
	Report() report.Report
	IsRunning() bool
	Do(action string) (engine.Result, error)
}

// SetupStore is the part of *config.Store the setup endpoint drives.
type SetupStore interface {
	Config() config.Config
	Update(u config.Update) (string, error)
}

// Options configures a Server. Zero values select the defaults.
type Options struct {
	Version string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Clock   clock.Clock
	// ActionRate and ActionBurst limit POST /omniping/engine across all clients.
	ActionRate  rate.Limit
	ActionBurst int
}

type Server struct {
	Logger  *zap.Logger
	Engine  Engine
	Setup   SetupStore
	Version string
	Metrics http.Handler

	clock   clock.Clock
	actions *rate.Limiter
}

func NewServer(l *zap.Logger, eng Engine, setup SetupStore, opts Options) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.ActionRate == 0 {
		opts.ActionRate = rate.Limit(5)
	}
	if opts.ActionBurst <= 0 {
		opts.ActionBurst = 10
	}
	return &Server{
		Logger:  l,
		Engine:  eng,
		Setup:   setup,
		Version: opts.Version,
		Metrics: opts.Metrics,
		clock:   opts.Clock,
		actions: rate.NewLimiter(opts.ActionRate, opts.ActionBurst),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.Logger))
	r.Use(cors.AllowAll().Handler)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics)
	}

	r.Route("/omniping", func(r chi.Router) {
		for _, path := range []string{"/engine", "/run"} {
			r.Get(path, s.handleGetReport)
			r.With(rateLimit(s.actions)).Post(path, s.handleAction)
		}
		for _, path := range []string{"/setup", "/tests"} {
			r.Get(path, s.handleGetSetup)
			r.Post(path, s.handleUpdateSetup)
		}
		for _, path := range []string{"/page_init", "/version"} {
			r.Get(path, s.handlePageInit)
		}
	})

	return r
}

// reportHelp is returned with every report for the web client's help panel.
var reportHelp = []string{
	`A "Good" status means the last probe succeeded. A red row has failed its last probe ` +
		`and the status names the failure, such as "Time Out" or "Unreachable".`,
	`A failed ping takes longer than a successful one, so tick durations vary. Stopping ` +
		`polling lets the probe in flight finish. If ticks overrun, raise the interval or ` +
		`probe fewer targets.`,
	`Rows keep the values of the last completed tick until the next one merges, so a ` +
		`report fetched mid-tick shows the previous results.`,
	`Any HTTP response counts as a success, since a 401 or 403 still shows the server ` +
		`is answering. Statuses other than 200 are shown in yellow so they stand out.`,
}

type reportResponse struct {
	report.View
	Message string   `json:"message"`
	Running bool     `json:"running"`
	Content []string `json:"content"`
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep := s.Engine.Report()
	writeJSON(w, http.StatusOK, reportResponse{
		View:    rep.View(s.clock.Now()),
		Message: fmt.Sprintf("Retrieved report (%d)", rep.TickCount),
		Running: s.Engine.IsRunning(),
		Content: reportHelp,
	})
}

type actionPayload struct {
	Action string `json:"action"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var p actionPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}

	res, err := s.Engine.Do(p.Action)
	if errors.Is(err, engine.ErrInvalidAction) {
		s.Logger.Warn("invalid_action", zap.String("action", p.Action))
		writeError(w, http.StatusBadRequest, "Invalid action requested")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.Logger.Info("engine_action",
		zap.String("action", strings.ToLower(strings.TrimSpace(p.Action))),
		zap.String("message", res.Message),
		zap.Bool("polling", res.Polling),
	)
	writeJSON(w, http.StatusOK, res)
}

type setupResponse struct {
	Tests    []config.Target `json:"tests"`
	Heading  string          `json:"heading"`
	Colour   string          `json:"colour"`
	Interval float64         `json:"interval"`
	Message  string          `json:"message"`
}

func (s *Server) setupResponse(message string) setupResponse {
	cfg := s.Setup.Config()
	tests := cfg.Targets
	if tests == nil {
		tests = []config.Target{}
	}
	return setupResponse{
		Tests:    tests,
		Heading:  cfg.Settings.Heading,
		Colour:   cfg.Settings.Colour,
		Interval: cfg.Settings.Interval.Seconds(),
		Message:  message,
	}
}

func (s *Server) handleGetSetup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.setupResponse("Set Up info retrieved"))
}

// setupPayload fields left empty or zero are not changed.
type setupPayload struct {
	Tests    *[]config.Target `json:"tests"`
	Heading  string           `json:"heading"`
	Colour   string           `json:"colour"`
	Interval float64          `json:"interval"`
}

func (p setupPayload) update() config.Update {
	u := config.Update{Targets: p.Tests}
	if p.Heading != "" {
		u.Heading = &p.Heading
	}
	if p.Colour != "" {
		u.Colour = &p.Colour
	}
	if p.Interval != 0 {
		interval := time.Duration(p.Interval * float64(time.Second))
		u.Interval = &interval
	}
	return u
}

func (s *Server) handleUpdateSetup(w http.ResponseWriter, r *http.Request) {
	var p setupPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}

	message, err := s.Setup.Update(p.update())
	if errors.Is(err, config.ErrInvalid) {
		s.Logger.Warn("invalid_setup", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.Logger.Error("setup_save_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save setup")
		return
	}

	s.Logger.Info("setup_updated", zap.String("message", message))
	writeJSON(w, http.StatusOK, s.setupResponse(message))
}

type pageInitResponse struct {
	Version string `json:"version"`
	Heading string `json:"heading"`
	Colour  string `json:"colour"`
	Running bool   `json:"running"`
	Message string `json:"message"`
}

func (s *Server) handlePageInit(w http.ResponseWriter, r *http.Request) {
	settings := s.Setup.Config().Settings
	running := s.Engine.IsRunning()
	message := "OmniPing Alive"
	if running {
		message += " and Polling"
	}
	writeJSON(w, http.StatusOK, pageInitResponse{
		Version: s.Version,
		Heading: settings.Heading,
		Colour:  settings.Colour,
		Running: running,
		Message: message,
	})
}

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Status: code, Message: message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs the API on addr and blocks until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return context.Canceled
		}
		return err
	}
}
