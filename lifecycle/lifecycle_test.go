// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielhkuo/quickly-rank/metrics"
	"github.com/danielhkuo/quickly-rank/models"
	"github.com/danielhkuo/quickly-rank/schulze"
	"github.com/danielhkuo/quickly-rank/testutil"
)

// fixture is an open poll with labelled options.
type fixture struct {
	db     *sql.DB
	pollID string
	ids    map[string]string // label -> option ID
}

func newFixture(t *testing.T, settings testutil.PollSettings, labels ...string) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	pollID, _, _ := testutil.CreateTestPollWith(t, db, testutil.GetTestConfig(), models.StatusOpen, settings)
	f := &fixture{db: db, pollID: pollID, ids: map[string]string{}}
	for _, l := range labels {
		f.ids[l] = testutil.AddTestOption(t, db, pollID, l)
	}
	return f
}

// vote casts count ballots ranking labels in order.
func (f *fixture) vote(t *testing.T, count int, labels ...string) {
	t.Helper()
	for i := 0; i < count; i++ {
		ranks := make(map[string]int, len(labels))
		for pos, l := range labels {
			ranks[f.ids[l]] = pos + 1
		}
		testutil.CastTestVotes(t, f.db, f.pollID, ranks)
	}
}

func (f *fixture) closer() *Closer {
	return NewCloser(f.db, testutil.GetTestConfig(), metrics.New(prometheus.NewRegistry()))
}

func labels(results []models.OptionResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Label
	}
	return out
}

func sortedLabels(results []models.OptionResult) []string {
	out := labels(results)
	sort.Strings(out)
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (f *fixture) status(t *testing.T) string {
	t.Helper()
	var status string
	if err := f.db.QueryRow(`SELECT status FROM poll WHERE id = $1`, f.pollID).Scan(&status); err != nil {
		t.Fatal(err)
	}
	return status
}

func (f *fixture) states(t *testing.T) map[string]string {
	t.Helper()
	rows, err := f.db.Query(`SELECT label, state FROM option WHERE poll_id = $1`, f.pollID)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var label string
		var state sql.NullString
		if err := rows.Scan(&label, &state); err != nil {
			t.Fatal(err)
		}
		out[label] = state.String
	}
	return out
}

func TestLoad(t *testing.T) {
	f := newFixture(t, testutil.PollSettings{}, "A", "B", "C")
	f.vote(t, 2, "A", "B", "C")
	f.vote(t, 1, "C", "B", "A")
	// A ballot with no rank rows ranks every option equally.
	token := testutil.CreateTestVoter(t, f.db, f.pollID, "blank")
	testutil.SubmitTestBallot(t, f.db, f.pollID, token, nil)

	e, err := Load(context.Background(), f.db, f.pollID)
	if err != nil {
		t.Fatal(err)
	}
	if e.BallotCount != 4 {
		t.Errorf("expected 4 ballots, got %d", e.BallotCount)
	}
	if len(e.Ballots) != 3 {
		t.Fatalf("expected 3 distinct rankings, got %d", len(e.Ballots))
	}
	total := 0
	for _, b := range e.Ballots {
		total += b.Count
	}
	if total != 4 {
		t.Errorf("expected total weight 4, got %d", total)
	}
	if e.Stars() != 5 {
		t.Errorf("expected 5 stars, got %d", e.Stars())
	}
	if e.Label(f.ids["B"]) != "B" {
		t.Errorf("unexpected label %q", e.Label(f.ids["B"]))
	}

	cands := e.Candidates()
	if !sort.StringsAreSorted(cands) || len(cands) != 3 {
		t.Errorf("candidates should be option IDs in ID order, got %v", cands)
	}
}

func TestLoad_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	if _, err := Load(context.Background(), db, "missing"); !errors.Is(err, ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}
}

func TestClose_SingleWinner(t *testing.T) {
	f := newFixture(t, testutil.PollSettings{}, "A", "B", "C")
	f.vote(t, 3, "A", "B", "C")
	f.vote(t, 2, "B", "C", "A")

	snap, err := f.closer().Close(context.Background(), f.pollID)
	if err != nil {
		t.Fatal(err)
	}

	if got := labels(snap.Winners); !equal(got, []string{"A"}) {
		t.Errorf("expected winner A, got %v", got)
	}
	if got := sortedLabels(snap.Losers); !equal(got, []string{"B", "C"}) {
		t.Errorf("expected losers B and C, got %v", got)
	}
	if snap.BallotCount != 5 || snap.Result.Voters != 5 {
		t.Errorf("expected 5 ballots, got %d / %d", snap.BallotCount, snap.Result.Voters)
	}
	if snap.Result.Single == nil || snap.Result.Single.Winner != f.ids["A"] {
		t.Errorf("unexpected engine result %+v", snap.Result.Single)
	}

	if f.status(t) != models.StatusClosed {
		t.Errorf("expected poll closed, got %s", f.status(t))
	}
	states := f.states(t)
	if states["A"] != models.StateApproved || states["B"] != models.StateDenied || states["C"] != models.StateDenied {
		t.Errorf("unexpected option states %v", states)
	}

	var finalID, hash, payload string
	err = f.db.QueryRow(`
		SELECT p.final_snapshot_id, s.inputs_hash, s.payload
		FROM poll p JOIN result_snapshot s ON s.id = p.final_snapshot_id
		WHERE p.id = $1
	`, f.pollID).Scan(&finalID, &hash, &payload)
	if err != nil {
		t.Fatal(err)
	}
	if finalID != snap.ID || hash != snap.InputsHash {
		t.Errorf("stored snapshot %s/%s does not match %s/%s", finalID, hash, snap.ID, snap.InputsHash)
	}
	var stored models.ResultSnapshot
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		t.Fatal(err)
	}
	if !equal(labels(stored.Winners), []string{"A"}) {
		t.Errorf("stored payload has winners %v", labels(stored.Winners))
	}
}

func TestClose_InputsHashMatchesAudit(t *testing.T) {
	f := newFixture(t, testutil.PollSettings{}, "A", "B")
	f.vote(t, 2, "A", "B")
	f.vote(t, 1, "B", "A")

	e, err := Load(context.Background(), f.db, f.pollID)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := f.closer().Close(context.Background(), f.pollID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.InputsHash != schulze.InputsHash(e.Ballots) {
		t.Error("snapshot hash should be the hash of the loaded ballots")
	}
}

func TestClose_Proportional(t *testing.T) {
	f := newFixture(t, testutil.PollSettings{Method: models.MethodSchulzeSTV, Winners: 2}, "A", "B", "C")
	f.vote(t, 6, "A", "B", "C")
	f.vote(t, 4, "C", "B", "A")

	snap, err := f.closer().Close(context.Background(), f.pollID)
	if err != nil {
		t.Fatal(err)
	}
	if got := sortedLabels(snap.Winners); !equal(got, []string{"A", "C"}) {
		t.Errorf("expected A and C elected, got %v", got)
	}
	if snap.Result.Multi == nil || snap.Result.Multi.Stats.Subsets != 3 {
		t.Errorf("unexpected STV stats %+v", snap.Result.Multi)
	}
	states := f.states(t)
	if states["B"] != models.StateDenied || states["A"] != models.StateApproved {
		t.Errorf("unexpected option states %v", states)
	}
}

func TestClose_Sorted(t *testing.T) {
	f := newFixture(t, testutil.PollSettings{Method: models.MethodSchulzePR}, "A", "B", "C")
	f.vote(t, 3, "A", "B", "C")
	f.vote(t, 2, "C", "B", "A")

	snap, err := f.closer().Close(context.Background(), f.pollID)
	if err != nil {
		t.Fatal(err)
	}
	if got := labels(snap.Winners); !equal(got, []string{"A", "B", "C"}) {
		t.Errorf("expected order A, B, C, got %v", got)
	}
	for i, w := range snap.Winners {
		if w.Position != i+1 {
			t.Errorf("%s: expected position %d, got %d", w.Label, i+1, w.Position)
		}
	}
	if len(snap.Losers) != 0 {
		t.Errorf("a full ordering has no losers, got %v", labels(snap.Losers))
	}
	for label, state := range f.states(t) {
		if state != "" {
			t.Errorf("ordering should not set option states, %s is %q", label, state)
		}
	}
}

func TestClose_Errors(t *testing.T) {
	t.Run("no ballots", func(t *testing.T) {
		f := newFixture(t, testutil.PollSettings{}, "A", "B")
		_, err := f.closer().Close(context.Background(), f.pollID)
		if !errors.Is(err, schulze.ErrEmptyElectorate) {
			t.Fatalf("expected ErrEmptyElectorate, got %v", err)
		}
		if f.status(t) != models.StatusOpen {
			t.Error("poll should stay open")
		}
	})

	t.Run("over budget", func(t *testing.T) {
		f := newFixture(t, testutil.PollSettings{Method: models.MethodSchulzeSTV, Winners: 2}, "A", "B", "C")
		f.vote(t, 1, "A", "B", "C")
		cfg := testutil.GetTestConfig()
		cfg.STVMaxWinners = 1
		c := NewCloser(f.db, cfg, metrics.New(prometheus.NewRegistry()))

		_, err := c.Close(context.Background(), f.pollID)
		if !errors.Is(err, schulze.ErrBudgetExceeded) {
			t.Fatalf("expected ErrBudgetExceeded, got %v", err)
		}
		if f.status(t) != models.StatusOpen {
			t.Error("poll should stay open")
		}
		var n int
		f.db.QueryRow(`SELECT COUNT(*) FROM result_snapshot WHERE poll_id = $1`, f.pollID).Scan(&n)
		if n != 0 {
			t.Errorf("expected no snapshot, found %d", n)
		}
	})

	t.Run("already closed", func(t *testing.T) {
		f := newFixture(t, testutil.PollSettings{}, "A", "B")
		f.vote(t, 1, "A", "B")
		c := f.closer()
		if _, err := c.Close(context.Background(), f.pollID); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Close(context.Background(), f.pollID); !errors.Is(err, ErrPollNotOpen) {
			t.Fatalf("expected ErrPollNotOpen, got %v", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t, testutil.PollSettings{})
		if _, err := f.closer().Close(context.Background(), "missing"); !errors.Is(err, ErrPollNotFound) {
			t.Fatalf("expected ErrPollNotFound, got %v", err)
		}
	})
}

func TestLockOpen(t *testing.T) {
	f := newFixture(t, testutil.PollSettings{}, "A", "B")
	f.vote(t, 1, "A", "B")

	lock := func(pollID string) error {
		tx, err := f.db.BeginTx(t.Context(), nil)
		if err != nil {
			t.Fatal(err)
		}
		defer tx.Rollback()
		return LockOpen(t.Context(), tx, pollID)
	}

	if err := lock(f.pollID); err != nil {
		t.Fatalf("open poll: %v", err)
	}
	if err := lock("missing"); !errors.Is(err, ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}

	if _, err := f.closer().Close(context.Background(), f.pollID); err != nil {
		t.Fatal(err)
	}
	if err := lock(f.pollID); !errors.Is(err, ErrPollNotOpen) {
		t.Fatalf("expected ErrPollNotOpen after close, got %v", err)
	}
	if f.status(t) != models.StatusClosed {
		t.Error("lock must not change the status")
	}
}

func TestClose_CountsBallotWrittenUnderLock(t *testing.T) {
	f := newFixture(t, testutil.PollSettings{}, "A", "B")
	f.vote(t, 1, "B", "A")
	token := testutil.CreateTestVoter(t, f.db, f.pollID, "late")

	tx, err := f.db.BeginTx(t.Context(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := LockOpen(t.Context(), tx, f.pollID); err != nil {
		t.Fatal(err)
	}

	type closed struct {
		snap models.ResultSnapshot
		err  error
	}
	done := make(chan closed, 1)
	go func() {
		snap, err := f.closer().Close(context.Background(), f.pollID)
		done <- closed{snap, err}
	}()

	if _, err := tx.Exec(`
		INSERT INTO ballot (id, poll_id, voter_token, submitted_at) VALUES ($1, $2, $3, $4)
	`, "late-ballot", f.pollID, token, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	for label, rank := range map[string]int{"A": 1, "B": 2} {
		if _, err := tx.Exec(`
			INSERT INTO ballot_rank (ballot_id, option_id, rank_value) VALUES ($1, $2, $3)
		`, "late-ballot", f.ids[label], rank); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	got := <-done
	if got.err != nil {
		t.Fatalf("close failed: %v", got.err)
	}
	if got.snap.BallotCount != 2 {
		t.Errorf("expected the locked ballot to be counted, got %d ballots", got.snap.BallotCount)
	}

	e, err := Load(context.Background(), f.db, f.pollID)
	if err != nil {
		t.Fatal(err)
	}
	if got.snap.InputsHash != schulze.InputsHash(e.Ballots) {
		t.Error("stored ballots no longer match the snapshot's inputs hash")
	}
}

func TestCount_TieBrokenByPoll(t *testing.T) {
	f := newFixture(t, testutil.PollSettings{}, "A", "B", "C")
	f.vote(t, 1, "A", "B", "C")
	f.vote(t, 1, "B", "C", "A")
	f.vote(t, 1, "C", "A", "B")

	e, err := Load(context.Background(), f.db, f.pollID)
	if err != nil {
		t.Fatal(err)
	}
	c := f.closer()
	first, err := c.Count(context.Background(), e)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Count(context.Background(), e)
	if err != nil {
		t.Fatal(err)
	}

	if first.Single.Winner == "" {
		t.Fatal("a seeded count should resolve the cycle")
	}
	if first.Single.Winner != second.Single.Winner {
		t.Errorf("recount changed the winner: %s vs %s", first.Single.Winner, second.Single.Winner)
	}
	if len(first.Single.TiedWinners) != 2 {
		t.Errorf("expected the two undrawn candidates reported, got %v", first.Single.TiedWinners)
	}
}

func TestCloseDue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Hour)

	newPoll := func(closesAt *time.Time, ballots int) string {
		id, _, _ := testutil.CreateTestPollWith(t, db, cfg, models.StatusOpen, testutil.PollSettings{ClosesAt: closesAt})
		a := testutil.AddTestOption(t, db, id, "A")
		b := testutil.AddTestOption(t, db, id, "B")
		for i := 0; i < ballots; i++ {
			testutil.CastTestVotes(t, db, id, map[string]int{a: 1, b: 2})
		}
		return id
	}
	due := newPoll(&past, 2)
	empty := newPoll(&past, 0)
	later := newPoll(&future, 1)
	never := newPoll(nil, 1)

	reg := prometheus.NewRegistry()
	c := NewCloser(db, cfg, metrics.New(reg))
	c.now = func() time.Time { return now }

	closed, err := c.CloseDue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Errorf("expected 1 poll closed, got %d", closed)
	}

	want := map[string]string{
		due:   models.StatusClosed,
		empty: models.StatusOpen,
		later: models.StatusOpen,
		never: models.StatusOpen,
	}
	for id, status := range want {
		var got string
		if err := db.QueryRow(`SELECT status FROM poll WHERE id = $1`, id).Scan(&got); err != nil {
			t.Fatal(err)
		}
		if got != status {
			t.Errorf("poll %s: expected %s, got %s", id, status, got)
		}
	}
}

func TestNormalizeRanks(t *testing.T) {
	options := []string{"o1", "o2", "o3"}

	tests := []struct {
		name    string
		ranks   map[string]int
		stars   int
		want    map[string]int
		wantErr bool
	}{
		{"all ranked", map[string]int{"o1": 1, "o2": 2, "o3": 3}, 5, map[string]int{"o1": 1, "o2": 2, "o3": 3}, false},
		{"missing filled", map[string]int{"o2": 1}, 5, map[string]int{"o1": 6, "o2": 1, "o3": 6}, false},
		{"explicit unranked", map[string]int{"o1": 6}, 5, map[string]int{"o1": 6, "o2": 6, "o3": 6}, false},
		{"ties allowed", map[string]int{"o1": 2, "o2": 2}, 3, map[string]int{"o1": 2, "o2": 2, "o3": 4}, false},
		{"empty", map[string]int{}, 5, nil, true},
		{"zero rank", map[string]int{"o1": 0}, 5, nil, true},
		{"beyond unranked", map[string]int{"o1": 7}, 5, nil, true},
		{"unknown option", map[string]int{"o9": 1}, 5, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRanks(tt.ranks, options, tt.stars)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRanks) {
					t.Fatalf("expected ErrInvalidRanks, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s: got %d, want %d", k, got[k], v)
				}
			}
		})
	}
}
