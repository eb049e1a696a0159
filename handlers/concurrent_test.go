// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/danielhkuo/quickly-rank/models"
	"github.com/danielhkuo/quickly-rank/testutil"
)

// TestConcurrentBallotSubmissions verifies that multiple simultaneous ballot
// submissions from different voters don't cause data corruption or duplicates
func TestConcurrentBallotSubmissions(t *testing.T) {
	votingHandler, db, _ := newVotingHandler(t)
	cfg := testutil.GetTestConfig()

	pollID, _, shareSlug := testutil.CreateTestPoll(t, db, cfg, models.StatusOpen)
	opts := []string{
		testutil.AddTestOption(t, db, pollID, "Option A"),
		testutil.AddTestOption(t, db, pollID, "Option B"),
		testutil.AddTestOption(t, db, pollID, "Option C"),
	}

	numVoters := 10
	voterTokens := make([]string, numVoters)
	for i := 0; i < numVoters; i++ {
		voterTokens[i] = testutil.CreateTestVoter(t, db, pollID, "ConcurrentVoter"+string(rune('A'+i)))
	}

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numVoters; i++ {
		wg.Add(1)
		go func(voterIdx int) {
			defer wg.Done()

			// rotate the order so every voter differs from its neighbours
			ranks := map[string]int{}
			for j, opt := range opts {
				ranks[opt] = (voterIdx+j)%len(opts) + 1
			}

			w := submit(votingHandler, shareSlug, voterTokens[voterIdx], ranks)
			if w.Code == http.StatusCreated {
				successCount.Add(1)
			}
		}(i)
	}

	wg.Wait()

	if int(successCount.Load()) != numVoters {
		t.Errorf("Expected %d successful submissions, got %d", numVoters, successCount.Load())
	}

	var ballotCount, uniqueVoters, rankRows int
	db.QueryRow("SELECT COUNT(*) FROM ballot WHERE poll_id = $1", pollID).Scan(&ballotCount)
	db.QueryRow("SELECT COUNT(DISTINCT voter_token) FROM ballot WHERE poll_id = $1", pollID).Scan(&uniqueVoters)
	db.QueryRow(`
		SELECT COUNT(*) FROM ballot_rank r JOIN ballot b ON b.id = r.ballot_id WHERE b.poll_id = $1
	`, pollID).Scan(&rankRows)

	if ballotCount != numVoters || uniqueVoters != numVoters {
		t.Errorf("Expected %d ballots from distinct voters, got %d from %d", numVoters, ballotCount, uniqueVoters)
	}
	if rankRows != numVoters*len(opts) {
		t.Errorf("Expected %d rank rows, got %d", numVoters*len(opts), rankRows)
	}
}

// TestConcurrentUsernameClaims verifies that when several goroutines try to
// claim the same username, exactly one succeeds
func TestConcurrentUsernameClaims(t *testing.T) {
	votingHandler, db, _ := newVotingHandler(t)
	cfg := testutil.GetTestConfig()

	pollID, _, shareSlug := testutil.CreateTestPoll(t, db, cfg, models.StatusOpen)
	testutil.AddTestOption(t, db, pollID, "A")
	testutil.AddTestOption(t, db, pollID, "B")

	contestedUsername := "RaceConditionUser"
	numAttempts := 5

	var successCount, conflictCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numAttempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			switch claim(votingHandler, shareSlug, contestedUsername).Code {
			case http.StatusCreated:
				successCount.Add(1)
			case http.StatusConflict:
				conflictCount.Add(1)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("Expected exactly 1 successful claim, got %d", successCount.Load())
	}
	if int(conflictCount.Load()) != numAttempts-1 {
		t.Errorf("Expected %d conflicts, got %d", numAttempts-1, conflictCount.Load())
	}

	var claimCount int
	err := db.QueryRow("SELECT COUNT(*) FROM username_claim WHERE poll_id = $1 AND username = $2",
		pollID, contestedUsername).Scan(&claimCount)
	if err != nil {
		t.Fatalf("Failed to count claims: %v", err)
	}
	if claimCount != 1 {
		t.Errorf("Expected 1 username claim in database, got %d", claimCount)
	}
}

// TestConcurrentPollClose verifies that when several goroutines close the
// same poll, exactly one close wins and exactly one snapshot is stored
func TestConcurrentPollClose(t *testing.T) {
	cfg := testutil.GetTestConfig()
	pollHandler, db := newPollHandler(t, cfg)

	pollID, adminKey, _ := testutil.CreateTestPoll(t, db, cfg, models.StatusOpen)
	a := testutil.AddTestOption(t, db, pollID, "A")
	b := testutil.AddTestOption(t, db, pollID, "B")
	testutil.CastTestVotes(t, db, pollID, map[string]int{a: 1, b: 2}, map[string]int{b: 1, a: 2}, map[string]int{a: 1})

	numAttempts := 3
	var successCount, conflictCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numAttempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			req := httptest.NewRequest("POST", "/polls/"+pollID+"/close", nil)
			req.SetPathValue("id", pollID)
			req.Header.Set("X-Admin-Key", adminKey)
			w := httptest.NewRecorder()

			pollHandler.ClosePoll(w, req)

			switch w.Code {
			case http.StatusOK:
				successCount.Add(1)
			case http.StatusConflict:
				conflictCount.Add(1)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("Expected exactly one successful close, got %d", successCount.Load())
	}
	if int(conflictCount.Load()) != numAttempts-1 {
		t.Errorf("Expected %d conflicts, got %d", numAttempts-1, conflictCount.Load())
	}
	if pollStatus(t, db, pollID) != models.StatusClosed {
		t.Error("Expected poll to be closed")
	}

	var snapshotCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM result_snapshot WHERE poll_id = $1", pollID).Scan(&snapshotCount); err != nil {
		t.Fatalf("Failed to count snapshots: %v", err)
	}
	if snapshotCount != 1 {
		t.Errorf("Expected exactly 1 snapshot, got %d", snapshotCount)
	}
}

// TestConcurrentBallotUpdates verifies that a single voter updating their
// ballot concurrently ends with one complete ballot
func TestConcurrentBallotUpdates(t *testing.T) {
	votingHandler, db, _ := newVotingHandler(t)
	cfg := testutil.GetTestConfig()

	pollID, _, shareSlug := testutil.CreateTestPoll(t, db, cfg, models.StatusOpen)
	opt1 := testutil.AddTestOption(t, db, pollID, "A")
	opt2 := testutil.AddTestOption(t, db, pollID, "B")

	voterToken := testutil.CreateTestVoter(t, db, pollID, "UpdaterVoter")
	testutil.AssertStatus(t, submit(votingHandler, shareSlug, voterToken, map[string]int{opt1: 1, opt2: 1}), http.StatusCreated)

	numUpdates := 10
	var wg sync.WaitGroup

	for i := 0; i < numUpdates; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ranks := map[string]int{opt1: idx%5 + 1, opt2: 5 - idx%5}
			submit(votingHandler, shareSlug, voterToken, ranks)
		}(i)
	}

	wg.Wait()

	var ballotCount int
	err := db.QueryRow("SELECT COUNT(*) FROM ballot WHERE poll_id = $1 AND voter_token = $2",
		pollID, voterToken).Scan(&ballotCount)
	if err != nil {
		t.Fatalf("Failed to count ballots: %v", err)
	}
	if ballotCount != 1 {
		t.Errorf("Expected 1 ballot after updates, got %d", ballotCount)
	}

	var rankRows, sum int
	err = db.QueryRow(`
		SELECT COUNT(*), SUM(r.rank_value) FROM ballot_rank r
		JOIN ballot b ON r.ballot_id = b.id
		WHERE b.poll_id = $1 AND b.voter_token = $2
	`, pollID, voterToken).Scan(&rankRows, &sum)
	if err != nil {
		t.Fatalf("Failed to query ranks: %v", err)
	}
	// every update ranks the two options k and 6-k
	if rankRows != 2 || sum != 6 {
		t.Errorf("Expected one whole update to win, got %d rows summing to %d", rankRows, sum)
	}
}

// TestParallelPolls verifies that operations on different polls don't interfere
func TestParallelPolls(t *testing.T) {
	cfg := testutil.GetTestConfig()
	pollHandler, db := newPollHandler(t, cfg)
	votingHandler := NewVotingHandler(db, cfg, nil)

	numPolls := 5
	var wg sync.WaitGroup

	for i := 0; i < numPolls; i++ {
		wg.Add(1)
		go func(pollIdx int) {
			defer wg.Done()

			req := testutil.MakeRequest("POST", "/polls", models.CreatePollRequest{
				Title:       "Parallel Poll " + string(rune('A'+pollIdx)),
				CreatorName: "Tester",
			}, nil)
			w := httptest.NewRecorder()
			pollHandler.CreatePoll(w, req)
			if w.Code != http.StatusCreated {
				t.Errorf("Poll %d creation failed: %d", pollIdx, w.Code)
				return
			}

			var createResp models.CreatePollResponse
			json.NewDecoder(w.Body).Decode(&createResp)
			pollID := createResp.PollID
			admin := map[string]string{"X-Admin-Key": createResp.AdminKey}

			var optionIDs []string
			for j := 0; j < 3; j++ {
				req := testutil.MakeRequest("POST", "/polls/"+pollID+"/options",
					models.AddOptionRequest{Label: "Option " + string(rune('A'+j))}, admin)
				req.SetPathValue("id", pollID)
				w := httptest.NewRecorder()
				pollHandler.AddOption(w, req)
				if w.Code != http.StatusCreated {
					t.Errorf("Poll %d option %d failed: %d", pollIdx, j, w.Code)
					return
				}
				var optResp models.AddOptionResponse
				json.NewDecoder(w.Body).Decode(&optResp)
				optionIDs = append(optionIDs, optResp.OptionID)
			}

			req = testutil.MakeRequest("POST", "/polls/"+pollID+"/publish", nil, admin)
			req.SetPathValue("id", pollID)
			w = httptest.NewRecorder()
			pollHandler.PublishPoll(w, req)
			if w.Code != http.StatusOK {
				t.Errorf("Poll %d publish failed: %d", pollIdx, w.Code)
				return
			}
			var publishResp models.PublishPollResponse
			json.NewDecoder(w.Body).Decode(&publishResp)

			w = claim(votingHandler, publishResp.ShareSlug, "Voter"+string(rune('A'+pollIdx)))
			if w.Code != http.StatusCreated {
				t.Errorf("Poll %d username claim failed: %d", pollIdx, w.Code)
				return
			}
			var claimResp models.ClaimUsernameResponse
			json.NewDecoder(w.Body).Decode(&claimResp)

			// each poll's only voter puts a different option first
			favourite := optionIDs[pollIdx%len(optionIDs)]
			w = submit(votingHandler, publishResp.ShareSlug, claimResp.VoterToken, map[string]int{favourite: 1})
			if w.Code != http.StatusCreated {
				t.Errorf("Poll %d ballot failed: %d", pollIdx, w.Code)
				return
			}

			req = testutil.MakeRequest("POST", "/polls/"+pollID+"/close", nil, admin)
			req.SetPathValue("id", pollID)
			w = httptest.NewRecorder()
			pollHandler.ClosePoll(w, req)
			if w.Code != http.StatusOK {
				t.Errorf("Poll %d close failed: %d %s", pollIdx, w.Code, w.Body.String())
				return
			}
			var closeResp models.ClosePollResponse
			json.NewDecoder(w.Body).Decode(&closeResp)
			if len(closeResp.Snapshot.Winners) != 1 || closeResp.Snapshot.Winners[0].OptionID != favourite {
				t.Errorf("Poll %d: expected %s to win, got %+v", pollIdx, favourite, closeResp.Snapshot.Winners)
			}
		}(i)
	}

	wg.Wait()

	var closedCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM poll WHERE status = $1", models.StatusClosed).Scan(&closedCount); err != nil {
		t.Fatalf("Failed to count polls: %v", err)
	}
	if closedCount != numPolls {
		t.Errorf("Expected %d closed polls, got %d", numPolls, closedCount)
	}
}

// TestCloseDuringVoting verifies that ballots racing a close are either
// counted in the snapshot or rejected, never stored uncounted
func TestCloseDuringVoting(t *testing.T) {
	cfg := testutil.GetTestConfig()
	pollHandler, db := newPollHandler(t, cfg)
	votingHandler := NewVotingHandler(db, cfg, nil)

	pollID, adminKey, shareSlug := testutil.CreateTestPoll(t, db, cfg, models.StatusOpen)
	a := testutil.AddTestOption(t, db, pollID, "A")
	b := testutil.AddTestOption(t, db, pollID, "B")
	testutil.CastTestVotes(t, db, pollID, map[string]int{a: 1, b: 2}, map[string]int{b: 1, a: 2})

	numVoters := 12
	voterTokens := make([]string, numVoters)
	for i := 0; i < numVoters; i++ {
		voterTokens[i] = testutil.CreateTestVoter(t, db, pollID, "RacingVoter"+string(rune('A'+i)))
	}

	var successCount, conflictCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numVoters; i++ {
		wg.Add(1)
		go func(voterIdx int) {
			defer wg.Done()
			ranks := map[string]int{a: voterIdx%2 + 1, b: 2 - voterIdx%2}
			switch submit(votingHandler, shareSlug, voterTokens[voterIdx], ranks).Code {
			case http.StatusCreated:
				successCount.Add(1)
			case http.StatusConflict:
				conflictCount.Add(1)
			}
		}(i)
	}

	closeW := httptest.NewRecorder()
	wg.Add(1)
	go func() {
		defer wg.Done()
		req := httptest.NewRequest("POST", "/polls/"+pollID+"/close", nil)
		req.SetPathValue("id", pollID)
		req.Header.Set("X-Admin-Key", adminKey)
		pollHandler.ClosePoll(closeW, req)
	}()

	wg.Wait()

	testutil.AssertStatus(t, closeW, http.StatusOK)
	var closed models.ClosePollResponse
	testutil.AssertJSON(t, closeW, &closed)

	if int(successCount.Load()+conflictCount.Load()) != numVoters {
		t.Errorf("Expected every submission to be accepted or rejected, got %d accepted and %d rejected",
			successCount.Load(), conflictCount.Load())
	}
	if closed.Snapshot.BallotCount != int(successCount.Load())+2 {
		t.Errorf("Snapshot counted %d ballots, expected %d", closed.Snapshot.BallotCount, successCount.Load()+2)
	}

	var stored int
	if err := db.QueryRow("SELECT COUNT(*) FROM ballot WHERE poll_id = $1", pollID).Scan(&stored); err != nil {
		t.Fatalf("Failed to count ballots: %v", err)
	}
	if stored != closed.Snapshot.BallotCount {
		t.Errorf("Stored %d ballots but the snapshot counted %d", stored, closed.Snapshot.BallotCount)
	}

	req := httptest.NewRequest("GET", "/polls/"+pollID+"/raw-ballots", nil)
	req.SetPathValue("id", pollID)
	req.Header.Set("X-Admin-Key", adminKey)
	w := httptest.NewRecorder()
	pollHandler.GetRawBallots(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	var raw models.RawBallotsResponse
	testutil.AssertJSON(t, w, &raw)
	if raw.InputsHash != closed.Snapshot.InputsHash {
		t.Error("raw ballots hash differs from the snapshot")
	}
}
