// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schulze

// SingleOutcome is the result of a single-winner Schulze count.
// Winner is empty when a tie was reported rather than resolved; TiedWinners
// then holds the whole undominated set. When a tie was resolved, TiedWinners
// lists the undominated candidates that were not drawn.
type SingleOutcome struct {
	Winner      string           `json:"winner,omitempty"`
	TiedWinners []string         `json:"tied_winners,omitempty"`
	Undominated []string         `json:"undominated"`
	Pairwise    PreferenceMatrix `json:"pairwise"`
	Paths       PathMatrix       `json:"paths"`
}

// Tied reports whether the outcome is an unresolved tie.
func (o SingleOutcome) Tied() bool { return o.Winner == "" }

// SingleWinner runs tally, strongest paths and winner selection. A nil tb
// reports ties. It fails with ErrEmptyElectorate when there are no ballots.
func SingleWinner(candidates []string, ballots []WeightedBallot, tb TieBreaker) (SingleOutcome, error) {
	const op = "SingleWinner"
	cands, err := newCandidateSet(op, candidates)
	if err != nil {
		return SingleOutcome{}, err
	}
	p, err := buildProfile(op, cands, ballots)
	if err != nil {
		return SingleOutcome{}, err
	}
	if p.total == 0 {
		return SingleOutcome{}, newError(op, ErrEmptyElectorate, "no ballots cast")
	}
	return p.single(tb), nil
}

func (p *profile) single(tb TieBreaker) SingleOutcome {
	pref := p.preferences()
	paths := StrongestPaths(pref)
	top := paths.Undominated()
	out := SingleOutcome{Undominated: top, Pairwise: pref, Paths: paths}

	i, ok := breakTie(tb, top)
	if !ok {
		out.TiedWinners = top
		return out
	}
	out.Winner = top[i]
	for k, c := range top {
		if k != i {
			out.TiedWinners = append(out.TiedWinners, c)
		}
	}
	return out
}
