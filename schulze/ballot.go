// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schulze

import (
	"math"
	"strconv"
	"strings"
)

// Ranking maps a candidate to its rank on one ballot. Lower is better.
// Candidates left out rank below every explicit choice on that ballot.
type Ranking map[string]int

// WeightedBallot is a ranking cast Count times.
type WeightedBallot struct {
	Ranking Ranking `json:"ranking"`
	Count   int     `json:"count"`
}

// candidateSet is an ordered set of candidate IDs with an index lookup.
type candidateSet struct {
	ids   []string
	index map[string]int
}

func newCandidateSet(op string, candidates []string) (candidateSet, error) {
	if len(candidates) == 0 {
		return candidateSet{}, newError(op, ErrInvalidPoll, "no candidates")
	}
	cs := candidateSet{
		ids:   make([]string, len(candidates)),
		index: make(map[string]int, len(candidates)),
	}
	for i, id := range candidates {
		if _, dup := cs.index[id]; dup {
			return candidateSet{}, newError(op, ErrInvalidPoll, "duplicate candidate %q", id)
		}
		cs.ids[i] = id
		cs.index[id] = i
	}
	return cs, nil
}

// profile is a read-only, normalised view of a ballot multiset.
// ranks[v][i] is the effective rank of candidate i on distinct ballot v.
type profile struct {
	cands  candidateSet
	ranks  [][]int
	counts []int
	total  int
}

func buildProfile(op string, cands candidateSet, ballots []WeightedBallot) (*profile, error) {
	p := &profile{cands: cands}
	seen := make(map[string]int, len(ballots))
	for n, b := range ballots {
		if b.Count < 1 {
			return nil, newError(op, ErrInvalidBallot, "ballot %d has count %d", n, b.Count)
		}
		row, err := normalise(op, cands, b.Ranking, n)
		if err != nil {
			return nil, err
		}
		p.add(seen, row, b.Count)
	}
	return p, nil
}

func (p *profile) add(seen map[string]int, row []int, count int) {
	key := rowKey(row)
	if at, ok := seen[key]; ok {
		p.counts[at] += count
	} else {
		seen[key] = len(p.ranks)
		p.ranks = append(p.ranks, row)
		p.counts = append(p.counts, count)
	}
	p.total += count
}

func normalise(op string, cands candidateSet, ranking Ranking, n int) ([]int, error) {
	row := make([]int, len(cands.ids))
	worst := 0
	for id, r := range ranking {
		i, ok := cands.index[id]
		if !ok {
			return nil, newError(op, ErrInvalidBallot, "ballot %d ranks unknown candidate %q", n, id)
		}
		// MaxInt leaves no room below it for unranked candidates.
		if r < 1 || r == math.MaxInt {
			return nil, newError(op, ErrInvalidBallot, "ballot %d ranks %q at %d", n, id, r)
		}
		row[i] = r
		if r > worst {
			worst = r
		}
	}
	for i := range row {
		if row[i] == 0 {
			row[i] = worst + 1
		}
	}
	return row, nil
}

func rowKey(row []int) string {
	var sb strings.Builder
	for i, r := range row {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(r))
	}
	return sb.String()
}

// project returns the profile restricted to the candidates at keep, in that order.
// Ballots that become identical are merged.
func (p *profile) project(keep []int) *profile {
	ids := make([]string, len(keep))
	for j, i := range keep {
		ids[j] = p.cands.ids[i]
	}
	cands, _ := newCandidateSet("project", ids)
	out := &profile{cands: cands}
	seen := make(map[string]int, len(p.ranks))
	for v, full := range p.ranks {
		row := make([]int, len(keep))
		for j, i := range keep {
			row[j] = full[i]
		}
		out.add(seen, row, p.counts[v])
	}
	return out
}

func (p *profile) ballots() []WeightedBallot {
	out := make([]WeightedBallot, len(p.ranks))
	for v, row := range p.ranks {
		r := make(Ranking, len(row))
		for i, rank := range row {
			r[p.cands.ids[i]] = rank
		}
		out[v] = WeightedBallot{Ranking: r, Count: p.counts[v]}
	}
	return out
}

// Aggregate collapses one ranking per voter into weighted ballots.
// The sum of the returned counts equals len(rankings). Every returned
// ranking covers the whole candidate set.
func Aggregate(candidates []string, rankings []Ranking) ([]WeightedBallot, error) {
	ballots := make([]WeightedBallot, len(rankings))
	for i, r := range rankings {
		ballots[i] = WeightedBallot{Ranking: r, Count: 1}
	}
	return mergeOp("Aggregate", candidates, ballots)
}

// Merge groups weighted ballots whose effective rankings are identical.
// Merging the output of Aggregate or Merge again changes nothing.
func Merge(candidates []string, ballots []WeightedBallot) ([]WeightedBallot, error) {
	return mergeOp("Merge", candidates, ballots)
}

func mergeOp(op string, candidates []string, ballots []WeightedBallot) ([]WeightedBallot, error) {
	cands, err := newCandidateSet(op, candidates)
	if err != nil {
		return nil, err
	}
	p, err := buildProfile(op, cands, ballots)
	if err != nil {
		return nil, err
	}
	return p.ballots(), nil
}
