// Package metrics exposes the engine report as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/doridoridoriand/omniping/internal/report"
)

// ReportSource is satisfied by *engine.Engine.
type ReportSource interface {
	Report() report.Report
	IsRunning() bool
}

// Target states for the aggregated omniping_targets gauge.
const (
	stateGood    = "good"
	stateBad     = "bad"
	statePending = "pending"
)

type collector struct {
	source ReportSource

	ticks        *prometheus.Desc
	polling      *prometheus.Desc
	tickDuration *prometheus.Desc
	targets      *prometheus.Desc

	probes    *prometheus.Desc
	successes *prometheus.Desc
	up        *prometheus.Desc
	rtt       *prometheus.Desc
}

// NewCollector builds a collector that snapshots the report on every scrape.
func NewCollector(source ReportSource) prometheus.Collector {
	targetLabels := []string{"pos", "host", "kind"}
	return collector{
		source: source,
		ticks: prometheus.NewDesc(
			"omniping_ticks_total",
			"Number of ticks run since the report was last built.",
			nil, nil),
		polling: prometheus.NewDesc(
			"omniping_polling",
			"1 while the engine is polling.",
			nil, nil),
		tickDuration: prometheus.NewDesc(
			"omniping_last_tick_duration_seconds",
			"Wall time of the last completed tick.",
			nil, nil),
		targets: prometheus.NewDesc(
			"omniping_targets",
			"Number of targets in the report, labeled by last outcome.",
			[]string{"state"}, nil),
		probes: prometheus.NewDesc(
			"omniping_target_probes_total",
			"Number of probes merged for a target.",
			targetLabels, nil),
		successes: prometheus.NewDesc(
			"omniping_target_successes_total",
			"Number of good probes for a target.",
			targetLabels, nil),
		up: prometheus.NewDesc(
			"omniping_target_up",
			"1 when the last probe of a target was good.",
			targetLabels, nil),
		rtt: prometheus.NewDesc(
			"omniping_target_rtt_seconds",
			"Round trip time of the last probe, when measured.",
			targetLabels, nil),
	}
}

// Describe sends every descriptor, including per-target ones absent from an empty report.
func (c collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.ticks, c.polling, c.tickDuration, c.targets, c.probes, c.successes, c.up, c.rtt} {
		ch <- d
	}
}

// Collect may run concurrently with ticks; Report returns a private copy.
func (c collector) Collect(ch chan<- prometheus.Metric) {
	rep := c.source.Report()

	ch <- prometheus.MustNewConstMetric(c.ticks, prometheus.CounterValue, float64(rep.TickCount))
	ch <- prometheus.MustNewConstMetric(c.polling, prometheus.GaugeValue, boolValue(c.source.IsRunning()))
	ch <- prometheus.MustNewConstMetric(c.tickDuration, prometheus.GaugeValue, rep.LastTickDuration.Seconds())

	counts := map[string]int{stateGood: 0, stateBad: 0, statePending: 0}
	for _, stats := range rep.Targets {
		labels := []string{strconv.Itoa(stats.Position), stats.Host, string(stats.Kind)}
		ch <- prometheus.MustNewConstMetric(c.probes, prometheus.CounterValue, float64(stats.Total), labels...)
		ch <- prometheus.MustNewConstMetric(c.successes, prometheus.CounterValue, float64(stats.Successes), labels...)
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, boolValue(stats.Good), labels...)
		if stats.CurrentRTT > 0 {
			ch <- prometheus.MustNewConstMetric(c.rtt, prometheus.GaugeValue, stats.CurrentRTT.Seconds(), labels...)
		}

		switch {
		case stats.Total == 0:
			counts[statePending]++
		case stats.Good:
			counts[stateGood]++
		default:
			counts[stateBad]++
		}
	}
	for _, state := range []string{stateGood, stateBad, statePending} {
		ch <- prometheus.MustNewConstMetric(c.targets, prometheus.GaugeValue, float64(counts[state]), state)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// MustRegister registers a collector for source. Registering the same source twice is a no-op.
func MustRegister(reg prometheus.Registerer, source ReportSource) {
	err := reg.Register(NewCollector(source))
	if err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			return
		}
		panic(err)
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
