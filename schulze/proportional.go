// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schulze

import (
	"context"
	"math"
	"math/bits"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// Defaults for Budget fields left at zero.
const (
	DefaultMaxSubsets = 1500
	DefaultMaxWinners = 12
)

// HardMaxSubsets is the largest MaxSubsets honoured; larger values are
// lowered to it. The link graph and its closure are two dense S×S float64
// matrices, so S winner sets hold 16·S² bytes: about 36 MB at the default
// and 400 MB at this cap.
const HardMaxSubsets = 5000

// maxCandidates bounds proportional counts; subsets are bitmasks.
const maxCandidates = 64

// Budget caps the cost of a proportional count. The number of winner sets S
// grows as C(candidates, seats); the final closure takes S³ steps and 16·S²
// bytes.
type Budget struct {
	MaxSubsets int           // winner sets that may be enumerated, at most HardMaxSubsets
	MaxWinners int           // largest seat count accepted
	Timeout    time.Duration // 0 leaves only the caller's deadline
	Workers    int           // parallel subset evaluations, 0 = GOMAXPROCS
}

func (b Budget) withDefaults() Budget {
	if b.MaxSubsets <= 0 {
		b.MaxSubsets = DefaultMaxSubsets
	}
	if b.MaxSubsets > HardMaxSubsets {
		b.MaxSubsets = HardMaxSubsets
	}
	if b.MaxWinners <= 0 {
		b.MaxWinners = DefaultMaxWinners
	}
	if b.Workers <= 0 {
		b.Workers = runtime.GOMAXPROCS(0)
	}
	return b
}

// STVStats reports how much work a proportional count did.
type STVStats struct {
	Subsets int `json:"subsets"`
	Links   int `json:"links"`
}

// MultiOutcome is the result of a proportional count. Winners is empty when
// several winner sets tie and the tie was reported; TiedSets lists them.
type MultiOutcome struct {
	Winners  []string         `json:"winners,omitempty"`
	TiedSets [][]string       `json:"tied_sets,omitempty"`
	Stats    STVStats         `json:"stats"`
	Pairwise PreferenceMatrix `json:"pairwise"`
}

// Proportional selects seats winners jointly with the Schulze STV method:
// every seats-sized candidate set is a node, sets differing in one member are
// linked by their vote-management strength, and the undominated set under
// the strongest-path relation wins.
func Proportional(ctx context.Context, candidates []string, ballots []WeightedBallot, seats int, tb TieBreaker, budget Budget) (MultiOutcome, error) {
	const op = "Proportional"
	cands, err := newCandidateSet(op, candidates)
	if err != nil {
		return MultiOutcome{}, err
	}
	p, err := buildProfile(op, cands, ballots)
	if err != nil {
		return MultiOutcome{}, err
	}
	if p.total == 0 {
		return MultiOutcome{}, newError(op, ErrEmptyElectorate, "no ballots cast")
	}
	return p.proportional(ctx, seats, tb, budget.withDefaults())
}

func (p *profile) proportional(ctx context.Context, seats int, tb TieBreaker, budget Budget) (MultiOutcome, error) {
	const op = "Proportional"
	n := len(p.cands.ids)
	if seats <= 0 {
		seats = 1
	}
	out := MultiOutcome{Pairwise: p.preferences()}
	if seats >= n {
		out.Winners = append([]string(nil), p.cands.ids...)
		return out, nil
	}
	if seats > budget.MaxWinners {
		return MultiOutcome{}, newError(op, ErrBudgetExceeded, "%d seats requested, at most %d allowed", seats, budget.MaxWinners)
	}
	if n > maxCandidates {
		return MultiOutcome{}, newError(op, ErrBudgetExceeded, "%d candidates, at most %d allowed", n, maxCandidates)
	}
	count, ok := binomial(n, seats, budget.MaxSubsets)
	if !ok {
		return MultiOutcome{}, newError(op, ErrBudgetExceeded, "choosing %d of %d candidates needs more than %s winner sets",
			seats, n, humanize.Comma(int64(budget.MaxSubsets)))
	}
	out.Stats = STVStats{Subsets: count, Links: count * (n - seats)}

	if budget.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget.Timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return MultiOutcome{}, wrapError(op, ErrBudgetExceeded, err, "stopped before evaluating winner sets")
	}

	sets := combinations(n, seats)
	index := make(map[uint64]int, len(sets))
	for i, s := range sets {
		index[mask(s)] = i
	}

	// Each worker fills only its own slot of strengths.
	strengths := make([][]float64, len(sets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(budget.Workers)
	for i := range sets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			strengths[i] = p.defend(sets[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MultiOutcome{}, wrapError(op, ErrBudgetExceeded, err, "stopped while evaluating %s winner sets", humanize.Comma(int64(len(sets))))
	}
	if err := ctx.Err(); err != nil {
		return MultiOutcome{}, wrapError(op, ErrBudgetExceeded, err, "stopped after evaluating %s winner sets", humanize.Comma(int64(len(sets))))
	}

	// A → A∖{d}∪{e} carries A's strength against e, for every member d.
	graph := square[float64](len(sets))
	for i, set := range sets {
		m := mask(set)
		for e, s := range strengths[i] {
			if m&(1<<uint(e)) != 0 {
				continue
			}
			for _, d := range set {
				graph[i][index[m&^(1<<uint(d))|1<<uint(e)]] = s
			}
		}
	}
	paths := links(graph)
	if err := widen(paths, ctx.Err); err != nil {
		return MultiOutcome{}, wrapError(op, ErrBudgetExceeded, err, "stopped during strongest-path closure over %s winner sets", humanize.Comma(int64(len(sets))))
	}

	top := undominated(paths)
	keys := make([]string, len(top))
	for k, i := range top {
		keys[k] = strings.Join(p.names(sets[i]), "\x00")
	}
	if k, ok := breakTie(tb, keys); ok {
		out.Winners = p.names(sets[top[k]])
		return out, nil
	}
	for _, i := range top {
		out.TiedSets = append(out.TiedSets, p.names(sets[i]))
	}
	return out, nil
}

// defend returns, for every candidate e outside set, the vote-management
// strength of set against e. Entries for members are 0.
func (p *profile) defend(set []int) []float64 {
	k := len(set)
	full := 1<<uint(k) - 1
	strict := make([]float64, full+1)
	dist := make([]float64, full+1)
	out := make([]float64, len(p.cands.ids))

	type partial struct {
		support, tie int
		w            float64
	}
	var tied []partial

	for e := range out {
		if containsInt(set, e) {
			continue
		}
		clear(strict)
		tied = tied[:0]
		for v, row := range p.ranks {
			re := row[e]
			support, tie := 0, 0
			for j, m := range set {
				switch {
				case row[m] < re:
					support |= 1 << uint(j)
				case row[m] == re:
					tie |= 1 << uint(j)
				}
			}
			w := float64(p.counts[v])
			if tie == 0 {
				strict[support] += w
			} else {
				tied = append(tied, partial{support, tie, w})
			}
		}

		copy(dist, strict)
		for _, t := range tied {
			complete(dist, strict, t.support, t.tie, t.w)
		}
		out[e] = manage(dist, k)
	}
	return out
}

// complete spreads weight w of a ballot that is tied on the positions in tie
// over its strict completions, in proportion to the strict ballots agreeing
// with it elsewhere, or evenly if there are none.
func complete(dist, strict []float64, support, tie int, w float64) {
	total := 0.0
	for y := tie; ; y = (y - 1) & tie {
		total += strict[support|y]
		if y == 0 {
			break
		}
	}
	even := w / float64(int(1)<<uint(popcount(tie)))
	for y := tie; ; y = (y - 1) & tie {
		if total > 0 {
			dist[support|y] += w * strict[support|y] / total
		} else {
			dist[support|y] += even
		}
		if y == 0 {
			break
		}
	}
}

// manage returns the largest T such that the weight in dist can be split
// so each of the k members receives T from voters preferring it. By
// max-flow/min-cut this is min over non-empty X of support(X)/|X|, where
// support(X) is the weight of patterns touching X. dist is overwritten.
func manage(dist []float64, k int) float64 {
	full := len(dist) - 1
	// Subset sums: dist[y] becomes the weight of patterns inside y.
	for b := 0; b < k; b++ {
		bit := 1 << uint(b)
		for y := 0; y <= full; y++ {
			if y&bit != 0 {
				dist[y] += dist[y^bit]
			}
		}
	}
	total := dist[full]
	best := math.Inf(1)
	for x := 1; x <= full; x++ {
		if v := (total - dist[full&^x]) / float64(popcount(x)); v < best {
			best = v
		}
	}
	// Strengths are compared pairwise; drop float noise below a nano-vote.
	return math.Round(best*1e9) / 1e9
}

func (p *profile) names(set []int) []string {
	out := make([]string, len(set))
	for j, i := range set {
		out[j] = p.cands.ids[i]
	}
	return out
}

// combinations lists the k-subsets of 0..n-1 in lexicographic order.
func combinations(n, k int) [][]int {
	var out [][]int
	cur := make([]int, k)
	for i := range cur {
		cur[i] = i
	}
	for {
		out = append(out, append([]int(nil), cur...))
		i := k - 1
		for i >= 0 && cur[i] == n-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		cur[i]++
		for j := i + 1; j < k; j++ {
			cur[j] = cur[j-1] + 1
		}
	}
}

// binomial returns C(n, k), or false once it exceeds limit.
func binomial(n, k, limit int) (int, bool) {
	if k > n-k {
		k = n - k
	}
	c := 1
	for i := 0; i < k; i++ {
		c = c * (n - i) / (i + 1)
		if c > limit {
			return c, false
		}
	}
	return c, true
}

func mask(set []int) uint64 {
	var m uint64
	for _, i := range set {
		m |= 1 << uint(i)
	}
	return m
}

func popcount(x int) int { return bits.OnesCount(uint(x)) }

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
