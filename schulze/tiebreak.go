// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schulze

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// TieBreaker picks one of several tied options, identified by stable keys
// (candidate IDs, or subset keys for proportional polls). ok is false when
// the tie should be reported instead of resolved.
type TieBreaker interface {
	Choose(keys []string) (i int, ok bool)
}

// ReportTie never resolves a tie.
type ReportTie struct{}

func (ReportTie) Choose([]string) (int, bool) { return 0, false }

// SeededTieBreaker resolves ties by the smallest xxhash64 of seed and key.
// The choice depends only on the seed and the set of keys, not their order.
type SeededTieBreaker struct {
	Seed uint64
}

func (s SeededTieBreaker) Choose(keys []string) (int, bool) {
	if len(keys) == 0 {
		return 0, false
	}
	best, bestSum := 0, s.sum(keys[0])
	for i := 1; i < len(keys); i++ {
		h := s.sum(keys[i])
		if h < bestSum || (h == bestSum && keys[i] < keys[best]) {
			best, bestSum = i, h
		}
	}
	return best, true
}

func (s SeededTieBreaker) sum(key string) uint64 {
	d := xxhash.New()
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], s.Seed)
	_, _ = d.Write(seed[:])
	_, _ = d.WriteString(key)
	return d.Sum64()
}

// RandomTieBreaker draws uniformly from the tied options. Results are only
// reproducible if Source is.
type RandomTieBreaker struct {
	Source rand.Source
}

func (r RandomTieBreaker) Choose(keys []string) (int, bool) {
	if len(keys) == 0 {
		return 0, false
	}
	src := r.Source
	if src == nil {
		return rand.IntN(len(keys)), true
	}
	return rand.New(src).IntN(len(keys)), true
}

func breakTie(tb TieBreaker, keys []string) (int, bool) {
	if len(keys) == 1 {
		return 0, true
	}
	if tb == nil {
		tb = ReportTie{}
	}
	i, ok := tb.Choose(keys)
	if !ok || i < 0 || i >= len(keys) {
		return 0, false
	}
	return i, true
}
