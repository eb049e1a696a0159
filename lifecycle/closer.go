// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/danielhkuo/quickly-rank/auth"
	"github.com/danielhkuo/quickly-rank/cliparse"
	"github.com/danielhkuo/quickly-rank/metrics"
	"github.com/danielhkuo/quickly-rank/models"
	"github.com/danielhkuo/quickly-rank/observability"
	"github.com/danielhkuo/quickly-rank/schulze"
)

// Closer counts open polls and closes them.
type Closer struct {
	db      *sql.DB
	cfg     cliparse.Config
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewCloser(db *sql.DB, cfg cliparse.Config, m *metrics.Metrics) *Closer {
	if m == nil {
		m = metrics.Default
	}
	return &Closer{db: db, cfg: cfg, metrics: m, now: time.Now}
}

// Count runs the poll's counting method over its ballots. Ties are broken
// with a seed derived from the poll ID, so recounting gives the same result.
func (c *Closer) Count(ctx context.Context, e *Election) (schulze.Result, error) {
	cfg := schulze.Config{
		Method:   schulze.Method(e.Poll.Method),
		Winners:  e.Seats(),
		TieBreak: schulze.SeededTieBreaker{Seed: auth.TieSeed(e.Poll.ID, c.cfg.AdminKeySalt)},
		Budget:   c.cfg.Budget(),
	}

	start := time.Now()
	res, err := schulze.Compute(ctx, e.Candidates(), e.Ballots, cfg)
	c.metrics.ObserveCount(e.Poll.Method, time.Since(start), res, err)
	return res, err
}

// Close counts an open poll and, in one transaction, marks it closed,
// stores the result snapshot and sets each option's state. On any error
// the poll is left open and unchanged.
//
// A poll without ballots fails with schulze.ErrEmptyElectorate; a count
// over the configured limits fails with schulze.ErrBudgetExceeded.
func (c *Closer) Close(ctx context.Context, pollID string) (models.ResultSnapshot, error) {
	ctx, span := observability.Tracer().Start(ctx, "lifecycle.Close")
	defer span.End()
	span.SetAttributes(attribute.String("poll.id", pollID))

	snap, err := c.close(ctx, pollID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.ResultSnapshot{}, err
	}
	span.SetAttributes(
		attribute.String("poll.method", snap.Method),
		attribute.Int("poll.ballots", snap.BallotCount),
		attribute.String("snapshot.id", snap.ID),
	)
	return snap, nil
}

func (c *Closer) close(ctx context.Context, pollID string) (models.ResultSnapshot, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ResultSnapshot{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Claim the poll before reading ballots: writers holding LockOpen finish
	// first, later ones see it closed. The status guard also makes a
	// concurrent close lose cleanly.
	closedAt := c.now().UTC()
	claimed, err := tx.ExecContext(ctx, `
		UPDATE poll
		SET status = $1, closed_at = $2
		WHERE id = $3 AND status = $4
	`, models.StatusClosed, closedAt, pollID, models.StatusOpen)
	if err != nil {
		return models.ResultSnapshot{}, fmt.Errorf("failed to close poll: %w", err)
	}
	if n, err := claimed.RowsAffected(); err != nil {
		return models.ResultSnapshot{}, fmt.Errorf("failed to close poll: %w", err)
	} else if n != 1 {
		if _, err := GetPoll(ctx, tx, pollID); err != nil {
			return models.ResultSnapshot{}, err
		}
		return models.ResultSnapshot{}, ErrPollNotOpen
	}

	e, err := Load(ctx, tx, pollID)
	if err != nil {
		return models.ResultSnapshot{}, err
	}

	res, err := c.Count(ctx, e)
	if err != nil {
		return models.ResultSnapshot{}, fmt.Errorf("failed to count poll %s: %w", pollID, err)
	}

	snapshotID, err := auth.NewSnapshotID()
	if err != nil {
		return models.ResultSnapshot{}, err
	}
	snap := c.snapshot(snapshotID, e, res, closedAt)
	payload, err := json.Marshal(snap)
	if err != nil {
		return models.ResultSnapshot{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE poll SET final_snapshot_id = $1 WHERE id = $2
	`, snapshotID, pollID); err != nil {
		return models.ResultSnapshot{}, fmt.Errorf("failed to close poll: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO result_snapshot (id, poll_id, method, computed_at, inputs_hash, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, snapshotID, pollID, snap.Method, snap.ComputedAt, snap.InputsHash, string(payload))
	if err != nil {
		return models.ResultSnapshot{}, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	for optionID, state := range res.States() {
		if _, err := tx.ExecContext(ctx, `UPDATE option SET state = $1 WHERE id = $2`, state, optionID); err != nil {
			return models.ResultSnapshot{}, fmt.Errorf("failed to set option state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.ResultSnapshot{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("poll closed",
		"poll_id", pollID,
		"snapshot_id", snapshotID,
		"ballots", snap.BallotCount,
		"summary", res.Summary(),
	)
	return snap, nil
}

func (c *Closer) snapshot(id string, e *Election, res schulze.Result, computedAt time.Time) models.ResultSnapshot {
	states := res.States()
	ranked := res.Order != nil

	winners := []models.OptionResult{}
	for i, optionID := range res.Winners() {
		r := models.OptionResult{OptionID: optionID, Label: e.Label(optionID), State: states[optionID]}
		if ranked {
			r.Position = i + 1
		}
		winners = append(winners, r)
	}
	losers := []models.OptionResult{}
	for _, optionID := range res.Losers() {
		losers = append(losers, models.OptionResult{OptionID: optionID, Label: e.Label(optionID), State: states[optionID]})
	}

	return models.ResultSnapshot{
		ID:          id,
		PollID:      e.Poll.ID,
		Method:      e.Poll.Method,
		ComputedAt:  computedAt,
		Winners:     winners,
		Losers:      losers,
		Result:      res,
		BallotCount: e.BallotCount,
		InputsHash:  schulze.InputsHash(e.Ballots),
	}
}

// CloseDue closes every open poll whose closes_at has passed. Polls that
// cannot be closed yet, because they have no ballots or exceed the
// counting limits, stay open and are logged. It returns the number closed.
func (c *Closer) CloseDue(ctx context.Context) (int, error) {
	due, err := c.duePolls(ctx)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, pollID := range due {
		if err := ctx.Err(); err != nil {
			return closed, err
		}
		_, err := c.Close(ctx, pollID)
		switch {
		case err == nil:
			closed++
			c.metrics.AutoClosed.WithLabelValues("closed").Inc()
		case errors.Is(err, schulze.ErrEmptyElectorate):
			c.metrics.AutoClosed.WithLabelValues("empty").Inc()
			slog.Info("auto-close skipped: no ballots", "poll_id", pollID)
		case errors.Is(err, ErrPollNotOpen):
			// closed concurrently by its admin
		default:
			c.metrics.AutoClosed.WithLabelValues("failed").Inc()
			slog.Error("auto-close failed", "poll_id", pollID, "error", err)
		}
	}
	return closed, nil
}

// duePolls lists open polls past their closing time. The deadline is
// compared in Go so the query stays portable across databases.
func (c *Closer) duePolls(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, closes_at FROM poll
		WHERE status = $1 AND closes_at IS NOT NULL
		ORDER BY closes_at
	`, models.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query due polls: %w", err)
	}
	defer rows.Close()

	now := c.now()
	var due []string
	for rows.Next() {
		var id string
		var closesAt time.Time
		if err := rows.Scan(&id, &closesAt); err != nil {
			return nil, fmt.Errorf("failed to scan due poll: %w", err)
		}
		if !closesAt.After(now) {
			due = append(due, id)
		}
	}
	return due, rows.Err()
}
