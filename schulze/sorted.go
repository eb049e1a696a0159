// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schulze

// Round is one step of an elimination ranking.
type Round struct {
	Winner      string   `json:"winner,omitempty"`
	TiedWinners []string `json:"tied_winners,omitempty"`
	Candidates  []string `json:"candidates"` // still in the running when the round began
}

// OrderOutcome is the result of a sorted (iterative elimination) count.
// Order lists the round winners; it is shorter than Rounds only when the
// last round ended in an unresolved tie.
type OrderOutcome struct {
	Rounds   []Round          `json:"rounds"`
	Order    []string         `json:"order"`
	Pairwise PreferenceMatrix `json:"pairwise"`
}

// SortedOrder ranks candidates by repeatedly taking the Schulze winner of
// those remaining and striking it from every ballot. rounds <= 0 ranks every
// candidate. Elimination stops early at a tie tb does not resolve.
func SortedOrder(candidates []string, ballots []WeightedBallot, rounds int, tb TieBreaker) (OrderOutcome, error) {
	const op = "SortedOrder"
	cands, err := newCandidateSet(op, candidates)
	if err != nil {
		return OrderOutcome{}, err
	}
	p, err := buildProfile(op, cands, ballots)
	if err != nil {
		return OrderOutcome{}, err
	}
	if p.total == 0 {
		return OrderOutcome{}, newError(op, ErrEmptyElectorate, "no ballots cast")
	}
	return p.sorted(rounds, tb), nil
}

func (p *profile) sorted(rounds int, tb TieBreaker) OrderOutcome {
	n := len(p.cands.ids)
	if rounds <= 0 || rounds > n {
		rounds = n
	}
	out := OrderOutcome{Pairwise: p.preferences()}

	remaining := p
	for len(out.Rounds) < rounds {
		ids := remaining.cands.ids
		if len(ids) == 1 {
			out.Rounds = append(out.Rounds, Round{Winner: ids[0], Candidates: ids})
			out.Order = append(out.Order, ids[0])
			break
		}

		res := remaining.single(tb)
		out.Rounds = append(out.Rounds, Round{
			Winner:      res.Winner,
			TiedWinners: res.TiedWinners,
			Candidates:  ids,
		})
		if res.Tied() {
			break
		}
		out.Order = append(out.Order, res.Winner)
		remaining = remaining.project(without(len(ids), remaining.cands.index[res.Winner]))
	}
	return out
}

// without returns 0..n-1 minus skip.
func without(n, skip int) []int {
	keep := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		if i != skip {
			keep = append(keep, i)
		}
	}
	return keep
}
