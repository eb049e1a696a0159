// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/quickly-rank/auth"
	"github.com/danielhkuo/quickly-rank/cliparse"
	"github.com/danielhkuo/quickly-rank/db"
	"github.com/danielhkuo/quickly-rank/lifecycle"
	"github.com/danielhkuo/quickly-rank/metrics"
	"github.com/danielhkuo/quickly-rank/middleware"
	"github.com/danielhkuo/quickly-rank/models"
)

type VotingHandler struct {
	db      *sql.DB
	cfg     cliparse.Config
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewVotingHandler(db *sql.DB, cfg cliparse.Config, m *metrics.Metrics) *VotingHandler {
	if m == nil {
		m = metrics.Default
	}
	return &VotingHandler{db: db, cfg: cfg, metrics: m, now: time.Now}
}

// openPoll finds the poll behind the slug and checks it accepts votes. On
// failure it writes the error response and returns false.
func (h *VotingHandler) openPoll(w http.ResponseWriter, r *http.Request) (models.Poll, bool) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
		return models.Poll{}, false
	}

	poll, err := lifecycle.GetPollBySlug(r.Context(), h.db, shareSlug)
	if errors.Is(err, lifecycle.ErrPollNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return models.Poll{}, false
	}
	if err != nil {
		slog.Error("failed to query poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return models.Poll{}, false
	}

	if poll.Status != models.StatusOpen {
		middleware.ErrorResponse(w, http.StatusConflict, "Poll is not open for voting")
		return models.Poll{}, false
	}
	// The scheduler may not have closed it yet
	if poll.ClosesAt != nil && !poll.ClosesAt.After(h.now()) {
		middleware.ErrorResponse(w, http.StatusConflict, "Poll voting deadline has passed")
		return models.Poll{}, false
	}
	return poll, true
}

// ClaimUsername handles POST /polls/:slug/claim-username
func (h *VotingHandler) ClaimUsername(w http.ResponseWriter, r *http.Request) {
	var req models.ClaimUsernameRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Username == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "username is required")
		return
	}
	if len(req.Username) < 2 || len(req.Username) > 50 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "username must be 2-50 characters")
		return
	}

	poll, ok := h.openPoll(w, r)
	if !ok {
		return
	}

	voterToken, err := auth.GenerateVoterToken()
	if err != nil {
		slog.Error("failed to generate voter token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to claim username")
		return
	}

	// UNIQUE (poll_id, username) rejects duplicates
	_, err = h.db.ExecContext(r.Context(), `
		INSERT INTO username_claim (poll_id, username, voter_token, created_at)
		VALUES ($1, $2, $3, $4)
	`, poll.ID, req.Username, voterToken, h.now().UTC())

	if err != nil {
		if db.IsUniqueViolation(err) {
			middleware.ErrorResponse(w, http.StatusConflict, "Username already taken")
			return
		}
		slog.Error("failed to insert username claim", "error", err, "poll_id", poll.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to claim username")
		return
	}

	slog.Info("username claimed", "poll_id", poll.ID, "username", req.Username)

	middleware.JSONResponse(w, http.StatusCreated, models.ClaimUsernameResponse{
		VoterToken: voterToken,
	})
}

// SubmitBallot handles POST /polls/:slug/ballots
// Stores a rank for every option; options the voter left out rank last.
// Submitting again replaces the voter's previous ballot.
func (h *VotingHandler) SubmitBallot(w http.ResponseWriter, r *http.Request) {
	voterToken := r.Header.Get("X-Voter-Token")
	if voterToken == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Voter-Token header required")
		return
	}

	var req models.SubmitBallotRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req.Ranks) == 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "ranks cannot be empty")
		return
	}

	poll, ok := h.openPoll(w, r)
	if !ok {
		return
	}

	claimed, err := h.tokenClaimed(r.Context(), poll.ID, voterToken)
	if err != nil {
		slog.Error("failed to verify voter token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if !claimed {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid voter token for this poll")
		return
	}

	options, err := lifecycle.GetOptions(r.Context(), h.db, poll.ID)
	if err != nil {
		slog.Error("failed to query options", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	optionIDs := make([]string, len(options))
	for i, o := range options {
		optionIDs[i] = o.ID
	}

	stars := models.Stars(len(options), poll.MinStars, poll.MaxStars)
	ranks, err := lifecycle.NormalizeRanks(req.Ranks, optionIDs, stars)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ipHash := auth.HashIP(middleware.GetClientIP(r), h.cfg.AdminKeySalt)
	userAgent := r.UserAgent()
	submittedAt := h.now().UTC()

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer tx.Rollback()

	// openPoll ran outside the transaction; a close may have won since.
	err = lifecycle.LockOpen(r.Context(), tx, poll.ID)
	if errors.Is(err, lifecycle.ErrPollNotOpen) || errors.Is(err, lifecycle.ErrPollNotFound) {
		middleware.ErrorResponse(w, http.StatusConflict, "Poll is not open for voting")
		return
	}
	if err != nil {
		slog.Error("failed to lock poll", "poll_id", poll.ID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	var existingBallotID string
	err = tx.QueryRowContext(r.Context(), `
		SELECT id FROM ballot WHERE poll_id = $1 AND voter_token = $2
	`, poll.ID, voterToken).Scan(&existingBallotID)
	if err != nil && err != sql.ErrNoRows {
		slog.Error("failed to query ballot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	isUpdate := err == nil
	var ballotID string

	if isUpdate {
		ballotID = existingBallotID
		_, err = tx.ExecContext(r.Context(), `
			UPDATE ballot
			SET submitted_at = $1, ip_hash = $2, user_agent = $3
			WHERE id = $4
		`, submittedAt, ipHash, userAgent, ballotID)
		if err != nil {
			slog.Error("failed to update ballot", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update ballot")
			return
		}

		_, err = tx.ExecContext(r.Context(), `DELETE FROM ballot_rank WHERE ballot_id = $1`, ballotID)
		if err != nil {
			slog.Error("failed to delete old ranks", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update ballot")
			return
		}
	} else {
		ballotID, err = auth.GenerateID(16)
		if err != nil {
			slog.Error("failed to generate ballot ID", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
			return
		}
		_, err = tx.ExecContext(r.Context(), `
			INSERT INTO ballot (id, poll_id, voter_token, submitted_at, ip_hash, user_agent)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, ballotID, poll.ID, voterToken, submittedAt, ipHash, userAgent)
		if err != nil {
			slog.Error("failed to insert ballot", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
			return
		}
	}

	for _, optionID := range optionIDs {
		_, err = tx.ExecContext(r.Context(), `
			INSERT INTO ballot_rank (ballot_id, option_id, rank_value)
			VALUES ($1, $2, $3)
		`, ballotID, optionID, ranks[optionID])
		if err != nil {
			slog.Error("failed to insert rank", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to save ranks")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
		return
	}

	message := "Ballot submitted successfully"
	kind := "new"
	if isUpdate {
		message = "Ballot updated successfully"
		kind = "update"
	}
	h.metrics.Ballots.WithLabelValues(kind).Inc()

	slog.Info("ballot submitted", "poll_id", poll.ID, "ballot_id", ballotID, "is_update", isUpdate)

	middleware.JSONResponse(w, http.StatusCreated, models.SubmitBallotResponse{
		BallotID: ballotID,
		Message:  message,
	})
}

// GetMyBallot handles GET /polls/:slug/my-ballot
// Returns the caller's ballot, identified by X-Voter-Token. Works in any
// poll status so voters can review what they cast after closing.
func (h *VotingHandler) GetMyBallot(w http.ResponseWriter, r *http.Request) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
		return
	}

	voterToken := r.Header.Get("X-Voter-Token")
	if voterToken == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Voter-Token header required")
		return
	}

	poll, err := lifecycle.GetPollBySlug(r.Context(), h.db, shareSlug)
	if errors.Is(err, lifecycle.ErrPollNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if err != nil {
		slog.Error("failed to query poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	var resp models.MyBallotResponse
	err = h.db.QueryRowContext(r.Context(), `
		SELECT id, submitted_at FROM ballot WHERE poll_id = $1 AND voter_token = $2
	`, poll.ID, voterToken).Scan(&resp.BallotID, &resp.SubmittedAt)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "No ballot submitted")
		return
	}
	if err != nil {
		slog.Error("failed to query ballot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT option_id, rank_value FROM ballot_rank WHERE ballot_id = $1
	`, resp.BallotID)
	if err != nil {
		slog.Error("failed to query ranks", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	resp.Ranks = map[string]int{}
	for rows.Next() {
		var optionID string
		var rank int
		if err := rows.Scan(&optionID, &rank); err != nil {
			slog.Error("failed to scan rank", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		resp.Ranks[optionID] = rank
	}
	if err := rows.Err(); err != nil {
		slog.Error("failed to read ranks", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	rows.Close()

	var optionCount int
	err = h.db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM option WHERE poll_id = $1`, poll.ID).Scan(&optionCount)
	if err != nil {
		slog.Error("failed to count options", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	resp.Stars = models.Stars(optionCount, poll.MinStars, poll.MaxStars)

	middleware.JSONResponse(w, http.StatusOK, resp)
}

func (h *VotingHandler) tokenClaimed(ctx context.Context, pollID, voterToken string) (bool, error) {
	var exists bool
	err := h.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM username_claim
			WHERE poll_id = $1 AND voter_token = $2
		)
	`, pollID, voterToken).Scan(&exists)
	return exists, err
}
