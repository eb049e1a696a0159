// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schulze

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
)

// EncodeBallots serialises a ballot list canonically: ranking keys are
// sorted, and ballots are ordered by their encoded ranking, then count.
// Ballot order never matters, but an unmerged list such as {X×1, X×1}
// encodes differently from {X×2}. Pass the output of Aggregate or Merge so
// that equal multisets encode to the same bytes.
func EncodeBallots(ballots []WeightedBallot) []byte {
	type entry struct {
		ranking []byte
		count   int
	}
	entries := make([]entry, len(ballots))
	for i, b := range ballots {
		r := b.Ranking
		if r == nil {
			r = Ranking{}
		}
		// map[string]int always marshals, with its keys in sorted order.
		raw, _ := json.Marshal(r)
		entries[i] = entry{raw, b.Count}
	}
	slices.SortFunc(entries, func(a, b entry) int {
		if c := bytes.Compare(a.ranking, b.ranking); c != 0 {
			return c
		}
		return cmp.Compare(a.count, b.count)
	})

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"ranking":`)
		buf.Write(e.ranking)
		buf.WriteString(`,"count":`)
		count, _ := json.Marshal(e.count)
		buf.Write(count)
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// InputsHash is the hex SHA-256 of EncodeBallots(ballots).
func InputsHash(ballots []WeightedBallot) string {
	sum := sha256.Sum256(EncodeBallots(ballots))
	return hex.EncodeToString(sum[:])
}
