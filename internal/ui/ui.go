// Package ui renders the engine report as a tcell dashboard and maps keys to engine actions.
package ui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"github.com/doridoridoriand/omniping/internal/config"
	"github.com/doridoridoriand/omniping/internal/engine"
	"github.com/doridoridoriand/omniping/internal/log"
	"github.com/doridoridoriand/omniping/internal/probe"
	"github.com/doridoridoriand/omniping/internal/report"
)

const (
	uiRefreshInterval = 500 * time.Millisecond
	minBoxHeight      = 4
	// rttScale is the milliseconds represented by one bar cell.
	rttScale = 10
)

// Engine is the part of *engine.Engine the dashboard drives.
type Engine interface {
	Report() report.Report
	IsRunning() bool
	Do(action string) (engine.Result, error)
}

// SettingsSource supplies the heading. *config.Store implements it.
type SettingsSource interface {
	Settings() config.Settings
}

// UI renders a TUI view of the report.
type UI struct {
	engine   Engine
	settings SettingsSource
	clock    clock.Clock
	log      *log.Logger

	mu      sync.Mutex
	message string
}

// New returns a UI instance. A nil clock or logger selects the defaults.
func New(eng Engine, settings SettingsSource, clk clock.Clock, logger *log.Logger) *UI {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &UI{engine: eng, settings: settings, clock: clk, log: logger.Named("ui")}
}

// Run blocks until the context is cancelled or the user quits.
func (u *UI) Run(ctx context.Context) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	screen.HideCursor()
	defer screen.Fini()

	eventCh := make(chan tcell.Event, 1)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case eventCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(uiRefreshInterval)
	defer ticker.Stop()

	u.render(screen)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-eventCh:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if u.handleKey(ev.Key(), ev.Rune()) {
					return context.Canceled
				}
				u.render(screen)
			case *tcell.EventResize:
				screen.Sync()
			}
		case <-ticker.C:
			u.render(screen)
		}
	}
}

var keyActions = map[rune]string{
	's': "start",
	'x': "stop",
	'r': "reset",
	'c': "clear",
}

// handleKey runs the action bound to a key and reports whether the user asked to quit.
func (u *UI) handleKey(key tcell.Key, r rune) bool {
	if key == tcell.KeyCtrlC || (key == tcell.KeyRune && r == 'q') {
		return true
	}
	if key != tcell.KeyRune {
		return false
	}
	action, ok := keyActions[r]
	if !ok {
		return false
	}

	res, err := u.engine.Do(action)
	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		if !errors.Is(err, engine.ErrInvalidAction) {
			u.log.LogError("ui", err, zap.String("action", action))
		}
		u.message = err.Error()
		return false
	}
	u.message = res.Message
	return false
}

func (u *UI) lastMessage() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.message
}

func (u *UI) render(screen tcell.Screen) {
	screen.Clear()
	width, height := screen.Size()
	if width < 20 || height < 5 {
		screen.Show()
		return
	}

	rep := u.engine.Report()
	heading := config.DefaultSettings().Heading
	if u.settings != nil {
		heading = u.settings.Settings().Heading
	}

	c := canvas{screen: screen}
	c.text(0, 0, width, formatHeader(heading, u.engine.IsRunning(), u.clock.Now()), tcell.StyleDefault.Bold(true))
	c.text(0, 1, width, formatReportInfo(rep, u.lastMessage()), tcell.StyleDefault.Foreground(tcell.ColorGray))

	y := 2
	for _, group := range groupTargets(rep.Targets) {
		if height-y < minBoxHeight {
			break
		}
		boxHeight := min(len(group.Targets)+2, height-y)
		drawGroup(c, 0, y, width, boxHeight, group)
		y += boxHeight
	}

	screen.Show()
}

func formatHeader(heading string, running bool, now time.Time) string {
	state := "idle"
	if running {
		state = "polling"
	}
	return fmt.Sprintf(" %s  %s  [%s]  (s start  x stop  r reset  c clear  q quit)",
		heading, now.Format("2006-01-02 15:04:05"), state)
}

func formatReportInfo(rep report.Report, message string) string {
	started, last := report.Unset, report.Unset
	if !rep.StartedAt.IsZero() {
		started = rep.StartedAt.Format("15:04:05")
	}
	if !rep.LastTickAt.IsZero() {
		last = rep.LastTickAt.Format("15:04:05")
	}
	info := fmt.Sprintf(" count=%d  started=%s  last=%s  duration=%s",
		rep.TickCount, started, last, formatDuration(rep.LastTickDuration))
	if message != "" {
		info += "  " + message
	}
	return info
}

type targetGroup struct {
	Name    string
	Targets []report.TargetStats
}

// groupTargets boxes targets by kind, PING first, keeping report order inside a box.
func groupTargets(targets []report.TargetStats) []targetGroup {
	if len(targets) == 0 {
		return nil
	}
	byKind := make(map[config.Kind][]report.TargetStats)
	for _, stats := range targets {
		byKind[stats.Kind] = append(byKind[stats.Kind], stats)
	}

	result := make([]targetGroup, 0, len(byKind))
	for _, kind := range []config.Kind{config.KindPing, config.KindHTTP, config.KindHTTPS} {
		if group, ok := byKind[kind]; ok {
			result = append(result, targetGroup{Name: string(kind), Targets: group})
			delete(byKind, kind)
		}
	}
	for _, stats := range targets {
		if group, ok := byKind[stats.Kind]; ok {
			result = append(result, targetGroup{Name: string(stats.Kind), Targets: group})
			delete(byKind, stats.Kind)
		}
	}
	return result
}

func drawGroup(c canvas, x, y, width, height int, group targetGroup) {
	c.frame(x, y, width, height, " "+group.Name+" ")
	for i := 0; i < len(group.Targets) && i < height-2; i++ {
		c.row(x+1, y+1+i, width-2, formatTargetLine(width-2, group.Targets[i]))
	}
}

// formatTargetLine lays out one target: description, host, status, RTT,
// success ratio, then an RTT bar filling the remaining width.
func formatTargetLine(width int, stats report.TargetStats) line {
	style := statusStyle(stats)
	l := line{
		plain(fit(stats.Description, min(16, width)) + " "),
		plain(fit(stats.Host, min(22, width)) + " "),
		{text: fit(stats.CurrentStatus, 18), style: style},
		plain(" " + fit("RTT:"+stats.RTT(), 14) + " "),
		{text: fit(fmt.Sprintf("OK:%s (%d/%d)", stats.SuccessPercent(), stats.Successes, stats.Total), 24), style: style},
		plain(" "),
	}
	if barWidth := width - l.width(); barWidth > 0 {
		l = append(l, segment{text: buildBar(stats.CurrentRTT, rttScale, barWidth), style: style})
	}
	return l.clip(width)
}

// buildBar draws rtt as '#' cells of scale milliseconds each, padded to width.
func buildBar(rtt time.Duration, scale int, width int) string {
	if width <= 0 {
		return ""
	}
	if scale <= 0 {
		scale = rttScale
	}
	ms := float64(rtt) / float64(time.Millisecond)
	if ms <= 0 {
		return strings.Repeat(" ", width)
	}
	units := int(math.Round(ms / float64(scale)))
	if units > width {
		units = width
	}
	if units < 0 {
		units = 0
	}
	return strings.Repeat("#", units) + strings.Repeat(" ", width-units)
}

// statusColor: green for a clean pass, yellow for a good HTTP status other
// than 200, red for a failure, gray before the first probe.
func statusColor(stats report.TargetStats) tcell.Color {
	switch {
	case stats.Total == 0:
		return tcell.ColorGray
	case !stats.Good:
		return tcell.ColorRed
	case stats.CurrentStatus == probe.StatusGood || stats.CurrentStatus == probe.StatusLabel(200):
		return tcell.ColorGreen
	default:
		return tcell.ColorYellow
	}
}

func statusStyle(stats report.TargetStats) tcell.Style {
	return tcell.StyleDefault.Foreground(statusColor(stats))
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return report.Unset
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dus", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
