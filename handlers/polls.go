// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/quickly-rank/auth"
	"github.com/danielhkuo/quickly-rank/cliparse"
	"github.com/danielhkuo/quickly-rank/lifecycle"
	"github.com/danielhkuo/quickly-rank/middleware"
	"github.com/danielhkuo/quickly-rank/models"
	"github.com/danielhkuo/quickly-rank/schulze"
)

type PollHandler struct {
	db     *sql.DB
	cfg    cliparse.Config
	closer *lifecycle.Closer
}

func NewPollHandler(db *sql.DB, cfg cliparse.Config, closer *lifecycle.Closer) *PollHandler {
	return &PollHandler{db: db, cfg: cfg, closer: closer}
}

// adminPollID reads the poll ID from the path and checks the X-Admin-Key
// header against it. On failure it writes the error response and returns
// false.
func (h *PollHandler) adminPollID(w http.ResponseWriter, r *http.Request) (string, bool) {
	pollID := r.PathValue("id")
	if pollID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "poll_id is required")
		return "", false
	}

	adminKey := r.Header.Get("X-Admin-Key")
	if err := auth.ValidateAdminKey(pollID, adminKey, h.cfg.AdminKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return "", false
	}
	return pollID, true
}

// CreatePoll handles POST /polls
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePollRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Validate input
	if req.Title == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.CreatorName == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "creator_name is required")
		return
	}

	if req.Method == "" {
		req.Method = models.MethodSchulze
	}
	if !schulze.Method(req.Method).Valid() {
		middleware.ErrorResponse(w, http.StatusBadRequest, "method must be one of schulze, schulze_pr, schulze_stv")
		return
	}

	if req.Winners == 0 {
		req.Winners = 1
	}
	if req.Winners < 1 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "winners must be at least 1")
		return
	}
	if req.Winners > 1 && req.Method != models.MethodSchulzeSTV {
		middleware.ErrorResponse(w, http.StatusBadRequest, "winners only applies to schulze_stv polls")
		return
	}
	if limit := h.cfg.Budget().MaxWinners; limit > 0 && req.Winners > limit {
		middleware.ErrorResponse(w, http.StatusBadRequest, "winners exceeds the configured maximum")
		return
	}

	if req.MaxStars == 0 {
		req.MaxStars = models.DefaultStars
	}
	if req.MinStars == 0 {
		req.MinStars = models.DefaultStars
	}
	if req.MaxStars < 1 || req.MinStars < 1 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "max_stars and min_stars must be at least 1")
		return
	}

	now := time.Now().UTC()
	var closesAt any
	if req.ClosesAt != nil {
		if !req.ClosesAt.After(now) {
			middleware.ErrorResponse(w, http.StatusBadRequest, "closes_at must be in the future")
			return
		}
		closesAt = req.ClosesAt.UTC()
	}

	// Generate poll ID
	pollID, err := auth.GenerateID(16)
	if err != nil {
		slog.Error("failed to generate poll ID", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create poll")
		return
	}

	adminKey := auth.GenerateAdminKey(pollID, h.cfg.AdminKeySalt)

	_, err = h.db.ExecContext(r.Context(), `
		INSERT INTO poll (id, title, description, creator_name, method, winners, max_stars, min_stars,
		                  status, closes_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, pollID, req.Title, req.Description, req.CreatorName, req.Method, req.Winners,
		req.MaxStars, req.MinStars, models.StatusDraft, closesAt, now)

	if err != nil {
		slog.Error("failed to insert poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create poll")
		return
	}

	slog.Info("poll created", "poll_id", pollID, "creator", req.CreatorName, "method", req.Method, "winners", req.Winners)

	middleware.JSONResponse(w, http.StatusCreated, models.CreatePollResponse{
		PollID:   pollID,
		AdminKey: adminKey,
	})
}

// AddOption handles POST /polls/:id/options
func (h *PollHandler) AddOption(w http.ResponseWriter, r *http.Request) {
	pollID, ok := h.adminPollID(w, r)
	if !ok {
		return
	}

	var req models.AddOptionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Label == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "label is required")
		return
	}

	// Options can only change while the poll is a draft
	var status string
	err := h.db.QueryRowContext(r.Context(), "SELECT status FROM poll WHERE id = $1", pollID).Scan(&status)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if err != nil {
		slog.Error("failed to query poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if status != models.StatusDraft {
		middleware.ErrorResponse(w, http.StatusConflict, "Cannot add options to non-draft poll")
		return
	}

	optionID, err := auth.GenerateID(12)
	if err != nil {
		slog.Error("failed to generate option ID", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create option")
		return
	}

	_, err = h.db.ExecContext(r.Context(), `
		INSERT INTO option (id, poll_id, label)
		VALUES ($1, $2, $3)
	`, optionID, pollID, req.Label)

	if err != nil {
		slog.Error("failed to insert option", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create option")
		return
	}

	slog.Info("option added", "poll_id", pollID, "option_id", optionID)

	middleware.JSONResponse(w, http.StatusCreated, models.AddOptionResponse{
		OptionID: optionID,
	})
}

// PublishPoll handles POST /polls/:id/publish
func (h *PollHandler) PublishPoll(w http.ResponseWriter, r *http.Request) {
	pollID, ok := h.adminPollID(w, r)
	if !ok {
		return
	}

	var status string
	var optionCount int
	err := h.db.QueryRowContext(r.Context(), `
		SELECT p.status, COUNT(o.id)
		FROM poll p
		LEFT JOIN option o ON p.id = o.poll_id
		WHERE p.id = $1
		GROUP BY p.status
	`, pollID).Scan(&status, &optionCount)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if err != nil {
		slog.Error("failed to query poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if status != models.StatusDraft {
		middleware.ErrorResponse(w, http.StatusConflict, "Poll is not in draft status")
		return
	}

	if optionCount < 2 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Poll must have at least 2 options")
		return
	}

	shareSlug := auth.GenerateShareSlug(pollID, h.cfg.PollSlugSalt)

	_, err = h.db.ExecContext(r.Context(), `
		UPDATE poll
		SET status = $1, share_slug = $2
		WHERE id = $3
	`, models.StatusOpen, shareSlug, pollID)

	if err != nil {
		slog.Error("failed to publish poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to publish poll")
		return
	}

	slog.Info("poll published", "poll_id", pollID, "share_slug", shareSlug, "options", optionCount)

	middleware.JSONResponse(w, http.StatusOK, models.PublishPollResponse{
		ShareSlug: shareSlug,
		ShareURL:  h.cfg.BaseURL + "/polls/" + shareSlug,
	})
}

// GetPollAdmin handles GET /polls/:id/admin
// Returns poll details for admin access using poll ID and admin key
func (h *PollHandler) GetPollAdmin(w http.ResponseWriter, r *http.Request) {
	pollID, ok := h.adminPollID(w, r)
	if !ok {
		return
	}

	poll, err := lifecycle.GetPoll(r.Context(), h.db, pollID)
	if errors.Is(err, lifecycle.ErrPollNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if err != nil {
		slog.Error("failed to query poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	options, err := lifecycle.GetOptions(r.Context(), h.db, poll.ID)
	if err != nil {
		slog.Error("failed to query options", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.PollWithOptions{
		Poll:    poll,
		Options: options,
		Stars:   models.Stars(len(options), poll.MinStars, poll.MaxStars),
	})
}

// ClosePoll handles POST /polls/:id/close
// Counts the ballots and stores the result snapshot. A poll that cannot be
// counted stays open.
func (h *PollHandler) ClosePoll(w http.ResponseWriter, r *http.Request) {
	pollID, ok := h.adminPollID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.closer.Close(r.Context(), pollID)
	switch {
	case err == nil:
	case errors.Is(err, lifecycle.ErrPollNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	case errors.Is(err, lifecycle.ErrPollNotOpen):
		middleware.ErrorResponse(w, http.StatusConflict, "Poll is not open")
		return
	case errors.Is(err, schulze.ErrEmptyElectorate):
		middleware.ErrorResponse(w, http.StatusConflict, "Cannot close a poll with no ballots")
		return
	case errors.Is(err, schulze.ErrBudgetExceeded):
		slog.Warn("poll too large to count", "poll_id", pollID, "error", err)
		middleware.ErrorResponse(w, http.StatusUnprocessableEntity, engineMessage(err))
		return
	default:
		slog.Error("failed to close poll", "poll_id", pollID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to close poll")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ClosePollResponse{
		ClosedAt: snapshot.ComputedAt,
		Snapshot: snapshot,
	})
}

// GetRawBallots handles GET /polls/:id/raw-ballots
// Returns the canonical ballot multiset of a closed poll, so anyone holding
// the admin key can recount it and check the inputs hash.
func (h *PollHandler) GetRawBallots(w http.ResponseWriter, r *http.Request) {
	pollID, ok := h.adminPollID(w, r)
	if !ok {
		return
	}

	e, err := lifecycle.Load(r.Context(), h.db, pollID)
	if errors.Is(err, lifecycle.ErrPollNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if err != nil {
		slog.Error("failed to load ballots", "poll_id", pollID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	// Ballots are sealed while the poll is open
	if e.Poll.Status != models.StatusClosed {
		middleware.ErrorResponse(w, http.StatusForbidden, "Ballots are hidden until poll is closed")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.RawBallotsResponse{
		PollID:      pollID,
		Candidates:  e.Candidates(),
		Ballots:     schulze.EncodeBallots(e.Ballots),
		BallotCount: e.BallotCount,
		InputsHash:  schulze.InputsHash(e.Ballots),
	})
}

// engineMessage returns the counting engine's own description of err,
// without the wrapping added on the way up.
func engineMessage(err error) string {
	var se *schulze.Error
	if errors.As(err, &se) {
		return se.Msg
	}
	return err.Error()
}
