// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle

import (
	"errors"
	"fmt"
)

// ErrInvalidRanks is returned for a submitted ballot that cannot be stored.
var ErrInvalidRanks = errors.New("invalid ranks")

// NormalizeRanks validates a submitted ballot against the poll's options
// and star count and returns a rank for every option. Ranks run from 1
// (best) to stars+1; options left out are stored at stars+1.
func NormalizeRanks(ranks map[string]int, optionIDs []string, stars int) (map[string]int, error) {
	if len(ranks) == 0 {
		return nil, fmt.Errorf("%w: ranks cannot be empty", ErrInvalidRanks)
	}

	valid := make(map[string]bool, len(optionIDs))
	for _, id := range optionIDs {
		valid[id] = true
	}

	unranked := stars + 1
	for optionID, rank := range ranks {
		if !valid[optionID] {
			return nil, fmt.Errorf("%w: unknown option_id %s", ErrInvalidRanks, optionID)
		}
		if rank < 1 || rank > unranked {
			return nil, fmt.Errorf("%w: rank for %s must be between 1 and %d", ErrInvalidRanks, optionID, unranked)
		}
	}

	out := make(map[string]int, len(optionIDs))
	for _, id := range optionIDs {
		if rank, ok := ranks[id]; ok {
			out[id] = rank
		} else {
			out[id] = unranked
		}
	}
	return out, nil
}
