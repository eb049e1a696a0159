// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schulze

import (
	"context"
	"fmt"
)

// Method selects how a poll is counted.
type Method string

const (
	MethodSingle Method = "schulze"     // one winner
	MethodSorted Method = "schulze_pr"  // full ordering by elimination
	MethodSTV    Method = "schulze_stv" // proportional multi-winner
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodSingle, MethodSorted, MethodSTV:
		return true
	}
	return false
}

// Option states assigned to candidates once a poll is counted.
const (
	StateApproved = "approved"
	StateDenied   = "denied"
)

// Config selects and tunes a count.
type Config struct {
	Method Method
	// Winners is the seat count for MethodSTV and the number of rounds for
	// MethodSorted (0 = rank everyone). Ignored by MethodSingle.
	Winners  int
	TieBreak TieBreaker
	Budget   Budget
}

// Result is the packaged outcome of one count. Exactly one of Single, Order
// and Multi is set, matching Method.
type Result struct {
	Method     Method         `json:"method"`
	Candidates []string       `json:"candidates"`
	Voters     int            `json:"voters"`
	Single     *SingleOutcome `json:"single,omitempty"`
	Order      *OrderOutcome  `json:"order,omitempty"`
	Multi      *MultiOutcome  `json:"multi,omitempty"`
}

// Compute counts ballots with the configured method. It never returns a
// partial result: on error the Result is zero.
func Compute(ctx context.Context, candidates []string, ballots []WeightedBallot, cfg Config) (Result, error) {
	const op = "Compute"
	if !cfg.Method.Valid() {
		return Result{}, newError(op, ErrInvalidPoll, "unknown method %q", cfg.Method)
	}
	cands, err := newCandidateSet(op, candidates)
	if err != nil {
		return Result{}, err
	}
	p, err := buildProfile(op, cands, ballots)
	if err != nil {
		return Result{}, err
	}
	if p.total == 0 {
		return Result{}, newError(op, ErrEmptyElectorate, "no ballots cast")
	}

	res := Result{
		Method:     cfg.Method,
		Candidates: append([]string(nil), cands.ids...),
		Voters:     p.total,
	}
	switch cfg.Method {
	case MethodSingle:
		o := p.single(cfg.TieBreak)
		res.Single = &o
	case MethodSorted:
		o := p.sorted(cfg.Winners, cfg.TieBreak)
		res.Order = &o
	case MethodSTV:
		o, err := p.proportional(ctx, cfg.Winners, cfg.TieBreak, cfg.Budget.withDefaults())
		if err != nil {
			return Result{}, err
		}
		res.Multi = &o
	}
	return res, nil
}

// Winners returns the elected candidates: the single winner, the ranked
// order, or the winning set. It is empty when the count ended in an
// unresolved tie before anyone was elected.
func (r Result) Winners() []string {
	switch {
	case r.Single != nil:
		if r.Single.Winner == "" {
			return nil
		}
		return []string{r.Single.Winner}
	case r.Order != nil:
		return r.Order.Order
	case r.Multi != nil:
		return r.Multi.Winners
	}
	return nil
}

// Losers returns the candidates not in Winners, in candidate order.
func (r Result) Losers() []string {
	won := make(map[string]bool)
	for _, w := range r.Winners() {
		won[w] = true
	}
	var out []string
	for _, c := range r.Candidates {
		if !won[c] {
			out = append(out, c)
		}
	}
	return out
}

// States maps every candidate to StateApproved or StateDenied. A ranking
// approves nobody, and neither does a count without winners.
func (r Result) States() map[string]string {
	if r.Order != nil {
		return map[string]string{}
	}
	winners := r.Winners()
	states := make(map[string]string, len(r.Candidates))
	if len(winners) == 0 {
		return states
	}
	for _, w := range winners {
		states[w] = StateApproved
	}
	for _, l := range r.Losers() {
		states[l] = StateDenied
	}
	return states
}

// Pairwise returns the full pairwise preference matrix for display.
func (r Result) Pairwise() PreferenceMatrix {
	switch {
	case r.Single != nil:
		return r.Single.Pairwise
	case r.Order != nil:
		return r.Order.Pairwise
	case r.Multi != nil:
		return r.Multi.Pairwise
	}
	return PreferenceMatrix{}
}

// Summary is a one-line description for logs.
func (r Result) Summary() string {
	w := r.Winners()
	if len(w) == 0 {
		return fmt.Sprintf("%s: no winner among %d candidates (%d voters)", r.Method, len(r.Candidates), r.Voters)
	}
	return fmt.Sprintf("%s: %v elected among %d candidates (%d voters)", r.Method, w, len(r.Candidates), r.Voters)
}
