// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielhkuo/quickly-rank/auth"
	"github.com/danielhkuo/quickly-rank/cliparse"
	"github.com/danielhkuo/quickly-rank/db"
	"github.com/danielhkuo/quickly-rank/models"
)

// SetupTestDB opens a fresh SQLite database in the test's temp dir with the
// full schema. It is closed when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := "file:" + filepath.Join(t.TempDir(), "quickly-rank.db")
	conn, err := db.Open(context.Background(), cliparse.DatabaseSQLite, url)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:              3318,
		DatabaseURL:       "file:test.db",
		DatabaseType:      cliparse.DatabaseSQLite,
		AdminKeySalt:      "test-admin-salt",
		PollSlugSalt:      "test-slug-salt",
		BaseURL:           "http://localhost:3318",
		AutoCloseSchedule: "off",
	}
}

// PollSettings are the counting columns of a test poll.
type PollSettings struct {
	Method   string
	Winners  int
	MaxStars int
	MinStars int
	ClosesAt *time.Time
}

// CreateTestPoll creates a single-winner poll and returns its ID, admin key
// and share slug. status should be "draft", "open", or "closed".
func CreateTestPoll(t *testing.T, db *sql.DB, cfg cliparse.Config, status string) (pollID, adminKey, shareSlug string) {
	t.Helper()
	return CreateTestPollWith(t, db, cfg, status, PollSettings{})
}

// CreateTestPollWith is CreateTestPoll with explicit counting settings.
// Zero fields take the schema defaults.
func CreateTestPollWith(t *testing.T, db *sql.DB, cfg cliparse.Config, status string, s PollSettings) (pollID, adminKey, shareSlug string) {
	t.Helper()

	if s.Method == "" {
		s.Method = models.MethodSchulze
	}
	if s.Winners == 0 {
		s.Winners = 1
	}
	if s.MaxStars == 0 {
		s.MaxStars = models.DefaultStars
	}
	if s.MinStars == 0 {
		s.MinStars = models.DefaultStars
	}

	pollID, _ = auth.GenerateID(16)
	adminKey = auth.GenerateAdminKey(pollID, cfg.AdminKeySalt)

	var slug *string
	if status == models.StatusOpen || status == models.StatusClosed {
		sl := auth.GenerateShareSlug(pollID, cfg.PollSlugSalt)
		slug = &sl
		shareSlug = sl
	}

	var closedAt *time.Time
	if status == models.StatusClosed {
		now := time.Now().UTC()
		closedAt = &now
	}

	_, err := db.Exec(`
		INSERT INTO poll (id, title, description, creator_name, method, winners, max_stars, min_stars,
		                  status, share_slug, closes_at, closed_at, created_at)
		VALUES ($1, 'Test Poll', 'A test poll', 'TestUser', $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, pollID, s.Method, s.Winners, s.MaxStars, s.MinStars, status, slug, s.ClosesAt, closedAt, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test poll: %v", err)
	}

	return pollID, adminKey, shareSlug
}

// AddTestOption adds an option to a poll and returns the option ID
func AddTestOption(t *testing.T, db *sql.DB, pollID, label string) string {
	t.Helper()

	optionID, _ := auth.GenerateID(12)
	_, err := db.Exec(`
		INSERT INTO option (id, poll_id, label)
		VALUES ($1, $2, $3)
	`, optionID, pollID, label)
	if err != nil {
		t.Fatalf("Failed to create test option: %v", err)
	}

	return optionID
}

// CreateTestVoter claims a username for a poll and returns the voter token
func CreateTestVoter(t *testing.T, db *sql.DB, pollID, username string) string {
	t.Helper()

	voterToken, _ := auth.GenerateVoterToken()
	_, err := db.Exec(`
		INSERT INTO username_claim (poll_id, username, voter_token, created_at)
		VALUES ($1, $2, $3, $4)
	`, pollID, username, voterToken, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test voter: %v", err)
	}

	return voterToken
}

// SubmitTestBallot stores a ballot with the given option ranks as-is. No
// filling of unranked options happens here.
func SubmitTestBallot(t *testing.T, db *sql.DB, pollID, voterToken string, ranks map[string]int) string {
	t.Helper()

	ballotID, _ := auth.GenerateID(16)
	_, err := db.Exec(`
		INSERT INTO ballot (id, poll_id, voter_token, submitted_at)
		VALUES ($1, $2, $3, $4)
	`, ballotID, pollID, voterToken, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test ballot: %v", err)
	}

	for optionID, rank := range ranks {
		_, err := db.Exec(`
			INSERT INTO ballot_rank (ballot_id, option_id, rank_value)
			VALUES ($1, $2, $3)
		`, ballotID, optionID, rank)
		if err != nil {
			t.Fatalf("Failed to create test rank: %v", err)
		}
	}

	return ballotID
}

// CastTestVotes claims a fresh voter for each ranking and submits it.
func CastTestVotes(t *testing.T, db *sql.DB, pollID string, rankings ...map[string]int) {
	t.Helper()
	for _, ranks := range rankings {
		suffix, _ := auth.GenerateID(6)
		token := CreateTestVoter(t, db, pollID, "voter-"+suffix)
		SubmitTestBallot(t, db, pollID, token, ranks)
	}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
