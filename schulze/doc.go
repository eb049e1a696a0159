// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package schulze counts ranked ballots with the Schulze method.

The engine is pure: it performs no I/O, keeps no global state and never
mutates the ballots it is given. Every exported operation validates its
input and fails with a *Error whose kind is one of ErrInvalidBallot,
ErrEmptyElectorate, ErrBudgetExceeded or ErrInvalidPoll:

	_, err := schulze.SingleWinner(ids, ballots, nil)
	if errors.Is(err, schulze.ErrEmptyElectorate) {
		// nobody voted
	}

# Ballots

A Ranking maps candidate IDs to ranks, lower is better. Candidates left off
a ballot rank just below its worst explicit choice. Aggregate and Merge
collapse identical rankings into WeightedBallots.

# Pipeline

	Tally           → PreferenceMatrix (pairwise wins)
	StrongestPaths  → PathMatrix (widest-path closure)
	Undominated     → candidates nobody beats

Three methods sit on top of the pipeline:

  - SingleWinner ("schulze"): one winner from the undominated set
  - SortedOrder ("schulze_pr"): repeated winners, each struck from the ballots
  - Proportional ("schulze_stv"): a winner set chosen jointly over all
    seats-sized candidate sets

Compute dispatches on Config.Method and returns a Result carrying the
outcome, the candidate set and the voter count.

# Ties

Ties in the undominated set go to a TieBreaker. ReportTie (the default)
leaves them unresolved; SeededTieBreaker picks reproducibly from a seed;
RandomTieBreaker draws from a math/rand/v2 source.

# Cost

Proportional enumerates C(candidates, seats) winner sets and closes a graph
over them in cubic time. Budget bounds the enumeration, the seat count and
the wall clock; overruns fail with ErrBudgetExceeded instead of returning an
approximate result.

# Audit

EncodeBallots gives a canonical byte encoding of a ballot multiset and
InputsHash its SHA-256, so a stored result can be checked against the
ballots it was computed from.
*/
package schulze
