// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package lifecycle loads polls for counting and closes them.

# Loading

Load reads a poll, its options (ordered by ID, which is the candidate order)
and one ranking per ballot, then merges identical rankings:

	e, err := lifecycle.Load(ctx, db, pollID)
	// e.Candidates(), e.Ballots, e.Stars()

Load accepts a *sql.DB or a *sql.Tx.

# Closing

Closer.Close runs in a single transaction: it marks the poll closed, reads
and counts the ballots with the poll's method, inserts the result snapshot
and sets each option to approved or denied:

	snap, err := closer.Close(ctx, pollID)

Nothing is written when counting fails. Ballot writers call LockOpen inside
their own transaction, so every stored ballot is either in the snapshot or
was rejected with ErrPollNotOpen. Callers distinguish:

  - schulze.ErrEmptyElectorate: no ballots yet
  - schulze.ErrBudgetExceeded: the proportional count is too large for the
    configured STV limits
  - ErrPollNotFound, ErrPollNotOpen

Ties are broken with a seed derived from the poll ID and the admin salt, so
the same ballots always produce the same snapshot.

CloseDue is run by the scheduler to close polls whose closes_at has passed.

# Ballots

NormalizeRanks validates a submitted ballot and fills options the voter left
out with stars+1, the "not ranked" level below every star.
*/
package lifecycle
