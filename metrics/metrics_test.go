// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielhkuo/quickly-rank/schulze"
)

// sampleValue returns the counter value or histogram sample count of the
// series with the given labels.
func sampleValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue series
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			if m.GetHistogram() != nil {
				return float64(m.GetHistogram().GetSampleCount())
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestOutcome(t *testing.T) {
	elected := schulze.Result{Candidates: []string{"A", "B"}, Single: &schulze.SingleOutcome{Winner: "A"}}
	tied := schulze.Result{Candidates: []string{"A", "B"}, Single: &schulze.SingleOutcome{}}

	tests := []struct {
		name string
		res  schulze.Result
		err  error
		want string
	}{
		{"elected", elected, nil, OutcomeElected},
		{"tied", tied, nil, OutcomeTied},
		{"empty", schulze.Result{}, &schulze.Error{Op: "Compute", Kind: schulze.ErrEmptyElectorate}, OutcomeEmpty},
		{"budget", schulze.Result{}, fmt.Errorf("close: %w", &schulze.Error{Op: "Proportional", Kind: schulze.ErrBudgetExceeded}), OutcomeBudget},
		{"invalid poll", schulze.Result{}, &schulze.Error{Op: "Compute", Kind: schulze.ErrInvalidPoll}, OutcomeInvalid},
		{"invalid ballot", schulze.Result{}, &schulze.Error{Op: "Compute", Kind: schulze.ErrInvalidBallot}, OutcomeInvalid},
		{"other", schulze.Result{}, errors.New("disk full"), OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Outcome(tt.res, tt.err); got != tt.want {
				t.Errorf("Outcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObserveCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	ballots := []schulze.WeightedBallot{
		{Ranking: schulze.Ranking{"A": 1, "B": 2, "C": 3}, Count: 3},
		{Ranking: schulze.Ranking{"B": 1, "C": 2, "A": 3}, Count: 2},
	}
	res, err := schulze.Compute(context.Background(), []string{"A", "B", "C"}, ballots,
		schulze.Config{Method: schulze.MethodSTV, Winners: 2})
	if err != nil {
		t.Fatal(err)
	}
	m.ObserveCount(string(schulze.MethodSTV), 5*time.Millisecond, res, nil)

	_, err = schulze.Compute(context.Background(), []string{"A", "B"}, nil, schulze.Config{Method: schulze.MethodSingle})
	m.ObserveCount(string(schulze.MethodSingle), time.Millisecond, schulze.Result{}, err)

	if got := sampleValue(t, reg, "quickly_rank_count_total", map[string]string{"method": "schulze_stv", "outcome": OutcomeElected}); got != 1 {
		t.Errorf("expected 1 elected STV count, got %v", got)
	}
	if got := sampleValue(t, reg, "quickly_rank_count_total", map[string]string{"method": "schulze", "outcome": OutcomeEmpty}); got != 1 {
		t.Errorf("expected 1 empty count, got %v", got)
	}
	if got := sampleValue(t, reg, "quickly_rank_count_stv_subsets", nil); got != 1 {
		t.Errorf("expected one subset observation, got %v", got)
	}
	if got := sampleValue(t, reg, "quickly_rank_count_duration_seconds", map[string]string{"method": "schulze"}); got != 1 {
		t.Errorf("expected one duration observation, got %v", got)
	}
}

func TestNew_SeparateRegistries(t *testing.T) {
	// Each registry gets its own collectors; registering twice on one panics.
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())

	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	reg := prometheus.NewRegistry()
	New(reg)
	New(reg)
}
