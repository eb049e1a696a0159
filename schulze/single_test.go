// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schulze

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cycle is a three-way Condorcet cycle with every margin 2:1.
func cycle() []WeightedBallot {
	return []WeightedBallot{
		{Ranking: ranked("A", "B", "C"), Count: 1},
		{Ranking: ranked("B", "C", "A"), Count: 1},
		{Ranking: ranked("C", "A", "B"), Count: 1},
	}
}

func TestSingleWinner_IdenticalBallots(t *testing.T) {
	out, err := SingleWinner(abc, []WeightedBallot{{Ranking: ranked("A", "B", "C"), Count: 3}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "A", out.Winner)
	assert.Empty(t, out.TiedWinners)
	assert.False(t, out.Tied())
	assert.Equal(t, []string{"A"}, out.Undominated)
	assert.Equal(t, abc, out.Pairwise.Candidates)
}

func TestSingleWinner_Wikipedia(t *testing.T) {
	out, err := SingleWinner(abcde, wikipediaBallots(), nil)
	require.NoError(t, err)
	assert.Equal(t, "E", out.Winner)
}

func TestSingleWinner_CondorcetWinnerAlwaysWins(t *testing.T) {
	// B beats everyone head to head in each profile.
	profiles := [][]WeightedBallot{
		{
			{Ranking: ranked("B", "A", "C"), Count: 1},
			{Ranking: ranked("A", "B", "C"), Count: 1},
			{Ranking: ranked("C", "B", "A"), Count: 1},
		},
		{
			{Ranking: ranked("A", "B", "C"), Count: 4},
			{Ranking: ranked("C", "B", "A"), Count: 4},
			{Ranking: ranked("B", "C", "A"), Count: 1},
		},
		{
			{Ranking: Ranking{"B": 1}, Count: 2},
			{Ranking: ranked("A", "C", "B"), Count: 1},
		},
	}
	for _, ballots := range profiles {
		out, err := SingleWinner(abc, ballots, nil)
		require.NoError(t, err)
		assert.Equal(t, "B", out.Winner)
		assert.Equal(t, []string{"B"}, out.Undominated)
	}
}

func TestSingleWinner_ZeroBallots(t *testing.T) {
	out, err := SingleWinner(abc, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyElectorate)
	assert.Equal(t, SingleOutcome{}, out)
}

func TestSingleWinner_CycleReportsTie(t *testing.T) {
	out, err := SingleWinner(abc, cycle(), ReportTie{})
	require.NoError(t, err)

	assert.True(t, out.Tied())
	assert.Empty(t, out.Winner)
	assert.Equal(t, abc, out.TiedWinners)
	assert.Equal(t, abc, out.Undominated)
}

func TestSingleWinner_CycleSeeded(t *testing.T) {
	tb := SeededTieBreaker{Seed: 42}

	first, err := SingleWinner(abc, cycle(), tb)
	require.NoError(t, err)
	require.False(t, first.Tied())
	assert.Contains(t, abc, first.Winner)
	assert.Len(t, first.TiedWinners, 2)
	assert.NotContains(t, first.TiedWinners, first.Winner)

	for i := 0; i < 5; i++ {
		again, err := SingleWinner([]string{"C", "B", "A"}, cycle(), tb)
		require.NoError(t, err)
		assert.Equal(t, first.Winner, again.Winner, "same seed, same winner")
	}
}

func TestSingleWinner_CycleRandom(t *testing.T) {
	out, err := SingleWinner(abc, cycle(), RandomTieBreaker{Source: rand.NewPCG(1, 2)})
	require.NoError(t, err)
	assert.Contains(t, abc, out.Winner)
}
