// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/quickly-rank/cache"
	"github.com/danielhkuo/quickly-rank/cliparse"
	"github.com/danielhkuo/quickly-rank/lifecycle"
	"github.com/danielhkuo/quickly-rank/middleware"
	"github.com/danielhkuo/quickly-rank/models"
	"github.com/danielhkuo/quickly-rank/schulze"
)

type ResultsHandler struct {
	db    *sql.DB
	cfg   cliparse.Config
	cache cache.Cache
}

func NewResultsHandler(db *sql.DB, cfg cliparse.Config, c cache.Cache) *ResultsHandler {
	if c == nil {
		c = cache.Nop{}
	}
	return &ResultsHandler{db: db, cfg: cfg, cache: c}
}

// ResultsResponse is the public view of a closed poll's outcome.
type ResultsResponse struct {
	Poll        models.Poll           `json:"poll"`
	Options     []models.Option       `json:"options"`
	Winners     []models.OptionResult `json:"winners"`
	Losers      []models.OptionResult `json:"losers"`
	Result      schulze.Result        `json:"result"`
	BallotCount int                   `json:"ballot_count"`
	InputsHash  string                `json:"inputs_hash"`
	ComputedAt  time.Time             `json:"computed_at"`
}

// GetPoll handles GET /polls/:slug
// Returns poll details and options, but NOT results (results are sealed until closed)
func (h *ResultsHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
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

// GetResults handles GET /polls/:slug/results
// Returns 403 while the poll is open (results are sealed) and the final
// snapshot once it is closed. Closed results never change, so they are
// served from the cache when present.
func (h *ResultsHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
		return
	}

	key := cache.ResultsKey(shareSlug)
	var cached ResultsResponse
	err := h.cache.Get(r.Context(), key, &cached)
	if err == nil {
		middleware.JSONResponse(w, http.StatusOK, cached)
		return
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		slog.Warn("results cache read failed", "slug", shareSlug, "error", err)
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

	// Results are sealed while poll is open
	if poll.Status != models.StatusClosed {
		middleware.ErrorResponse(w, http.StatusForbidden, "Results are hidden until poll is closed")
		return
	}

	if poll.FinalSnapshotID == nil {
		slog.Error("closed poll has no snapshot", "slug", shareSlug)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Results not available")
		return
	}

	var payload string
	err = h.db.QueryRowContext(r.Context(), `
		SELECT payload FROM result_snapshot WHERE id = $1
	`, *poll.FinalSnapshotID).Scan(&payload)
	if err != nil {
		slog.Error("failed to query snapshot", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	var snapshot models.ResultSnapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		slog.Error("failed to parse snapshot payload", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to parse results")
		return
	}

	options, err := lifecycle.GetOptions(r.Context(), h.db, poll.ID)
	if err != nil {
		slog.Error("failed to query options", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	response := ResultsResponse{
		Poll:        poll,
		Options:     options,
		Winners:     snapshot.Winners,
		Losers:      snapshot.Losers,
		Result:      snapshot.Result,
		BallotCount: snapshot.BallotCount,
		InputsHash:  snapshot.InputsHash,
		ComputedAt:  snapshot.ComputedAt,
	}

	if err := h.cache.Set(r.Context(), key, response, cache.TTLResults); err != nil {
		slog.Warn("results cache write failed", "slug", shareSlug, "error", err)
	}

	middleware.JSONResponse(w, http.StatusOK, response)
}

// GetBallotCount handles GET /polls/:slug/ballot-count
// Returns the number of ballots submitted (visible even while open)
func (h *ResultsHandler) GetBallotCount(w http.ResponseWriter, r *http.Request) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
		return
	}

	var pollID string
	err := h.db.QueryRowContext(r.Context(), `
		SELECT id FROM poll WHERE share_slug = $1
	`, shareSlug).Scan(&pollID)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if err != nil {
		slog.Error("failed to query poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	var count int
	err = h.db.QueryRowContext(r.Context(), `
		SELECT COUNT(*) FROM ballot WHERE poll_id = $1
	`, pollID).Scan(&count)

	if err != nil {
		slog.Error("failed to count ballots", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, map[string]int{
		"ballot_count": count,
	})
}

// GetPreview handles GET /polls/:slug/preview
// Returns compact poll data for share previews
func (h *ResultsHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	shareSlug := r.PathValue("slug")
	if shareSlug == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "slug is required")
		return
	}

	var resp models.PollPreviewResponse
	err := h.db.QueryRowContext(r.Context(), `
		SELECT p.title, p.status, p.method,
		       (SELECT COUNT(*) FROM option o WHERE o.poll_id = p.id),
		       (SELECT COUNT(*) FROM ballot b WHERE b.poll_id = p.id)
		FROM poll p
		WHERE p.share_slug = $1
	`, shareSlug).Scan(&resp.Title, &resp.Status, &resp.Method, &resp.OptionCount, &resp.BallotCount)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if err != nil {
		slog.Error("failed to query poll preview", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}
