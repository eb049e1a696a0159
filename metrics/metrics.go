// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danielhkuo/quickly-rank/schulze"
)

const namespace = "quickly_rank"

// Count outcomes.
const (
	OutcomeElected = "elected"
	OutcomeTied    = "tied"
	OutcomeEmpty   = "empty"
	OutcomeBudget  = "budget_exceeded"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	// --- HTTP ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge

	// --- Counting ---
	Counts        *prometheus.CounterVec
	CountDuration *prometheus.HistogramVec
	STVSubsets    prometheus.Histogram

	// --- Polls ---
	Ballots    *prometheus.CounterVec
	AutoClosed *prometheus.CounterVec
}

// Default is registered with the default Prometheus registry and served on /metrics.
var Default = New(prometheus.DefaultRegisterer)

// New creates and registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		HTTPInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		Counts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "count",
				Name:      "total",
				Help:      "Poll counts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		CountDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "count",
				Name:      "duration_seconds",
				Help:      "Time spent counting a poll",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10), // 0.5ms to ~2m
			},
			[]string{"method"},
		),
		STVSubsets: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "count",
				Name:      "stv_subsets",
				Help:      "Winner sets evaluated per proportional count",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8), // 1 to ~16k
			},
		),
		Ballots: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ballots",
				Name:      "submitted_total",
				Help:      "Ballots submitted, split into new ballots and replacements",
			},
			[]string{"kind"},
		),
		AutoClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "auto_close_total",
				Help:      "Scheduled poll closes by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Outcome classifies a count for the outcome label.
func Outcome(res schulze.Result, err error) string {
	switch {
	case err == nil && len(res.Winners()) == 0:
		return OutcomeTied
	case err == nil:
		return OutcomeElected
	case errors.Is(err, schulze.ErrEmptyElectorate):
		return OutcomeEmpty
	case errors.Is(err, schulze.ErrBudgetExceeded):
		return OutcomeBudget
	case errors.Is(err, schulze.ErrInvalidBallot), errors.Is(err, schulze.ErrInvalidPoll):
		return OutcomeInvalid
	}
	return OutcomeError
}

// ObserveCount records one engine run.
func (m *Metrics) ObserveCount(method string, elapsed time.Duration, res schulze.Result, err error) {
	m.Counts.WithLabelValues(method, Outcome(res, err)).Inc()
	m.CountDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	if err == nil && res.Multi != nil {
		m.STVSubsets.Observe(float64(res.Multi.Stats.Subsets))
	}
}
