// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schulze

// PreferenceMatrix holds pairwise preferences. Counts[a][b] is the ballot
// weight ranking Candidates[a] strictly above Candidates[b].
type PreferenceMatrix struct {
	Candidates []string `json:"candidates"`
	Counts     [][]int  `json:"counts"`
}

// Get returns the weight preferring a over b, or 0 if either is unknown.
func (m PreferenceMatrix) Get(a, b string) int {
	i, j := indexOf(m.Candidates, a), indexOf(m.Candidates, b)
	if i < 0 || j < 0 {
		return 0
	}
	return m.Counts[i][j]
}

// Tally builds the pairwise preference matrix for the given ballots.
func Tally(candidates []string, ballots []WeightedBallot) (PreferenceMatrix, error) {
	cands, err := newCandidateSet("Tally", candidates)
	if err != nil {
		return PreferenceMatrix{}, err
	}
	p, err := buildProfile("Tally", cands, ballots)
	if err != nil {
		return PreferenceMatrix{}, err
	}
	return p.preferences(), nil
}

// preferences is O(V·N²) over the distinct ballots of p.
func (p *profile) preferences() PreferenceMatrix {
	n := len(p.cands.ids)
	counts := square[int](n)
	for v, row := range p.ranks {
		w := p.counts[v]
		for a := 0; a < n; a++ {
			ra := row[a]
			for b := 0; b < n; b++ {
				if ra < row[b] {
					counts[a][b] += w
				}
			}
		}
	}
	return PreferenceMatrix{Candidates: p.cands.ids, Counts: counts}
}

func square[T weight](n int) [][]T {
	buf := make([]T, n*n)
	m := make([][]T, n)
	for i := range m {
		m[i] = buf[i*n : (i+1)*n : (i+1)*n]
	}
	return m
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
