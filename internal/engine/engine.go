// Package engine schedules probe batches and folds their outcomes into a report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/doridoridoriand/omniping/internal/config"
	"github.com/doridoridoriand/omniping/internal/log"
	"github.com/doridoridoriand/omniping/internal/probe"
	"github.com/doridoridoriand/omniping/internal/report"
)

// ErrInvalidAction is returned by Do for an unknown action name.
var ErrInvalidAction = errors.New("invalid action requested")

// TargetSource supplies the engine's targets and interval. config.Store implements it.
type TargetSource interface {
	ActiveTargets() []config.Target
	Interval() time.Duration
	TakePendingChanges() bool
}

// State is the engine's run state.
type State int

const (
	Idle State = iota
	Running
	// Stopping means polling was stopped but a tick is still draining.
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

// Result is returned by every engine operation.
type Result struct {
	Message string `json:"message"`
	Polling bool   `json:"polling"`
}

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	MaxConcurrency int
	Clock          clock.Clock
	Logger         *log.Logger
	// Sleep waits for d unless ctx ends first; it drives both the pacer and the trigger delay.
	Sleep func(ctx context.Context, d time.Duration) bool
}

// Engine owns the report and the goroutine that triggers ticks.
type Engine struct {
	source         TargetSource
	prober         probe.Prober
	clock          clock.Clock
	log            *log.Logger
	maxConcurrency int64
	sleep          func(ctx context.Context, d time.Duration) bool

	// opMu serializes Start, Stop, Reset and Clear.
	opMu sync.Mutex

	mu      sync.Mutex
	running bool
	store   *report.Store
	timing  Timing
	cancel  context.CancelFunc
	done    chan struct{}

	ticking atomic.Bool
}

// New builds an idle engine with a fresh report for the source's active targets.
func New(source TargetSource, prober probe.Prober, opts Options) *Engine {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 64
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	source.TakePendingChanges()
	return &Engine{
		source:         source,
		prober:         prober,
		clock:          opts.Clock,
		log:            opts.Logger.Named("engine"),
		maxConcurrency: int64(opts.MaxConcurrency),
		sleep:          opts.Sleep,
		store:          report.NewStore(source.ActiveTargets()),
		timing:         DeriveTiming(source.Interval()),
	}
}

// Report returns a snapshot of the current report.
func (e *Engine) Report() report.Report {
	e.mu.Lock()
	store := e.store
	e.mu.Unlock()
	return store.Snapshot()
}

// IsRunning reports whether polling is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// State reports the run state.
func (e *Engine) State() State {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	switch {
	case running:
		return Running
	case e.ticking.Load():
		return Stopping
	default:
		return Idle
	}
}

// Timing returns the timing of the current or most recent run.
func (e *Engine) Timing() Timing {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timing
}

// Start begins polling. Pending configuration changes rebuild the report first.
func (e *Engine) Start() Result {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return e.result("No change")
	}
	if e.source.TakePendingChanges() {
		e.store = report.NewStore(e.source.ActiveTargets())
	}
	return e.startLocked()
}

func (e *Engine) startLocked() Result {
	if e.store.Len() == 0 {
		return e.result("No Tests: Not starting")
	}

	e.timing = DeriveTiming(e.source.Interval())
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	prev := e.done
	e.done = make(chan struct{})
	e.running = true
	go e.trigger(ctx, e.timing, prev, e.done)

	e.log.Info("polling started",
		zap.Duration("interval", e.timing.Interval),
		zap.Duration("timeout", e.timing.Timeout),
		zap.Int("targets", e.store.Len()),
	)
	return e.result(fmt.Sprintf("Started Polling (%s secs)", config.FormatSeconds(e.timing.Interval)))
}

// Stop cancels the trigger. A tick already in flight runs to completion.
func (e *Engine) Stop() Result {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return e.result("No change")
	}
	e.stopLocked()
	return e.result("Stopped Polling")
}

func (e *Engine) stopLocked() {
	e.cancel()
	e.cancel = nil
	e.running = false
	e.log.Info("polling stopped")
}

// Reset stops polling and replaces the report with a fresh one.
func (e *Engine) Reset() Result {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	msg := "Report Cleared"
	if e.running {
		e.stopLocked()
		msg = "Report Cleared and Polling Stopped"
	}
	e.rebuildLocked()
	return e.result(msg)
}

// Clear zeroes the counters. A running engine is stopped, the in-flight tick is
// joined, and polling resumes on the fresh report.
func (e *Engine) Clear() Result {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	wasRunning := e.running
	done := e.done
	if wasRunning {
		e.stopLocked()
	}
	e.mu.Unlock()

	if wasRunning {
		<-done
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rebuildLocked()
	if wasRunning {
		e.startLocked()
	}
	return e.result("Report Counters Cleared")
}

func (e *Engine) rebuildLocked() {
	e.source.TakePendingChanges()
	e.store = report.NewStore(e.source.ActiveTargets())
}

// Do runs the named operation: start, stop, reset or clear.
func (e *Engine) Do(action string) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "start":
		return e.Start(), nil
	case "stop":
		return e.Stop(), nil
	case "reset":
		return e.Reset(), nil
	case "clear":
		return e.Clear(), nil
	default:
		return Result{Polling: e.IsRunning()}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}

// Wait blocks until every trigger goroutine started so far has exited.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Shutdown stops polling and waits for the in-flight tick, or for ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.Stop()
	finished := make(chan struct{})
	go func() {
		e.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) result(msg string) Result {
	return Result{Message: msg, Polling: e.running}
}

// trigger runs ticks with a fixed delay between the end of one and the start of the next.
// It first joins the previous run's trigger, so done closes only after every earlier
// run, including its in-flight tick, has finished.
func (e *Engine) trigger(ctx context.Context, timing Timing, prev <-chan struct{}, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}
	for {
		if !e.sleep(ctx, timing.Delay) {
			return
		}
		e.tick(timing)
		if ctx.Err() != nil {
			return
		}
	}
}

// tick runs one batch against the report current at its start. A reset during the
// batch leaves the merge landing on the discarded report.
func (e *Engine) tick(timing Timing) {
	if !e.ticking.CompareAndSwap(false, true) {
		e.log.Warn("tick skipped: previous tick still running")
		return
	}
	defer e.ticking.Store(false)

	e.mu.Lock()
	store := e.store
	e.mu.Unlock()

	start := e.clock.Now()
	n := store.BeginTick(start)
	outcomes, err := e.runBatch(store.Targets(), timing)
	now := e.clock.Now()
	if err != nil {
		e.log.LogError("engine", err, zap.Int("tick", n))
		store.Stamp(now, now.Sub(start))
		return
	}
	store.Merge(outcomes, now, now.Sub(start))
	e.log.Debug("tick complete", zap.Int("tick", n), zap.Int("probes", len(outcomes)), zap.Duration("duration", now.Sub(start)))
}

// runBatch probes every target concurrently, alongside the pacer, and joins them all.
func (e *Engine) runBatch(targets []config.Target, timing Timing) ([]probe.Outcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timing.batchDeadline(len(targets), e.maxConcurrency))
	defer cancel()

	outcomes := make([]probe.Outcome, len(targets))
	sem := semaphore.NewWeighted(e.maxConcurrency)

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  error
	)
	addErr := func(err error) {
		errMu.Lock()
		errs = multierr.Append(errs, err)
		errMu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.sleep(ctx, timing.Pace)
	}()

	for i, target := range targets {
		if err := sem.Acquire(ctx, 1); err != nil {
			addErr(fmt.Errorf("acquire probe slot for %s: %w", target.Host, err))
			break
		}
		wg.Add(1)
		go func(i int, target config.Target) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					addErr(fmt.Errorf("probe %s panicked: %v", target.Host, r))
				}
			}()

			out := e.prober.Probe(ctx, target, timing.Timeout)
			outcomes[i] = out
			e.log.LogProbeResult(target.Host, string(target.Kind), out.Status, out.Good, out.RTT, out.Err)
		}(i, target)
	}

	wg.Wait()
	return outcomes, errs
}
