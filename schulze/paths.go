// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schulze

// weight is the element type of pairwise and path matrices: ballot counts
// for candidates, fractional vote-management strengths for STV subsets.
type weight interface {
	~int | ~float64
}

// PathMatrix holds strongest-path strengths between candidates.
// Strengths[a][b] is 0 when no path from a to b exists.
type PathMatrix struct {
	Candidates []string `json:"candidates"`
	Strengths  [][]int  `json:"strengths"`
}

// StrongestPaths computes the Schulze widest-path closure of pref.
func StrongestPaths(pref PreferenceMatrix) PathMatrix {
	p := links(pref.Counts)
	_ = widen(p, nil)
	return PathMatrix{Candidates: pref.Candidates, Strengths: p}
}

// Beats reports whether a's strongest path to b beats b's path to a.
func (m PathMatrix) Beats(a, b string) bool {
	i, j := indexOf(m.Candidates, a), indexOf(m.Candidates, b)
	if i < 0 || j < 0 {
		return false
	}
	return m.Strengths[i][j] > m.Strengths[j][i]
}

// Undominated returns the candidates no other candidate beats, in
// candidate order. It holds more than one candidate only on an exact tie.
func (m PathMatrix) Undominated() []string {
	idx := undominated(m.Strengths)
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = m.Candidates[i]
	}
	return out
}

// links keeps d[a][b] only where it defeats d[b][a]; everything else is 0.
func links[T weight](d [][]T) [][]T {
	n := len(d)
	p := square[T](n)
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			if a != b && d[a][b] > d[b][a] {
				p[a][b] = d[a][b]
			}
		}
	}
	return p
}

// widen runs the (max, min) Floyd–Warshall relaxation in place.
// Loop order is fixed (c → a → b). check, if non-nil, runs once per
// intermediate and aborts the closure when it returns an error.
func widen[T weight](p [][]T, check func() error) error {
	n := len(p)

	var (
		c, a, b int
		ac, via T
	)
	for c = 0; c < n; c++ {
		if check != nil {
			if err := check(); err != nil {
				return err
			}
		}
		rowC := p[c]
		for a = 0; a < n; a++ {
			if a == c {
				continue
			}
			ac = p[a][c]
			if ac == 0 { // no path a→c
				continue
			}
			rowA := p[a]
			for b = 0; b < n; b++ {
				if b == a || b == c {
					continue
				}
				via = min(ac, rowC[b])
				if via > rowA[b] {
					rowA[b] = via
				}
			}
		}
	}
	return nil
}

// undominated returns the indices i with p[j][i] <= p[i][j] for every j.
func undominated[T weight](p [][]T) []int {
	var out []int
	for i := range p {
		beaten := false
		for j := range p {
			if i != j && p[j][i] > p[i][j] {
				beaten = true
				break
			}
		}
		if !beaten {
			out = append(out, i)
		}
	}
	return out
}
