// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danielhkuo/quickly-rank/models"
	"github.com/danielhkuo/quickly-rank/schulze"
)

var (
	ErrPollNotFound = errors.New("poll not found")
	ErrPollNotOpen  = errors.New("poll is not open")
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PollColumns is the column list read by ScanPoll.
const PollColumns = `id, title, description, creator_name, method, winners, max_stars, min_stars,
	status, share_slug, closes_at, closed_at, final_snapshot_id, created_at`

// ScanPoll scans a row selected with PollColumns.
func ScanPoll(row interface{ Scan(...any) error }) (models.Poll, error) {
	var p models.Poll
	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.CreatorName, &p.Method, &p.Winners,
		&p.MaxStars, &p.MinStars, &p.Status, &p.ShareSlug, &p.ClosesAt,
		&p.ClosedAt, &p.FinalSnapshotID, &p.CreatedAt,
	)
	return p, err
}

// GetPoll loads a poll by ID.
func GetPoll(ctx context.Context, db Querier, pollID string) (models.Poll, error) {
	p, err := ScanPoll(db.QueryRowContext(ctx, `SELECT `+PollColumns+` FROM poll WHERE id = $1`, pollID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Poll{}, ErrPollNotFound
	}
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to query poll: %w", err)
	}
	return p, nil
}

// GetPollBySlug loads a published poll by its share slug.
func GetPollBySlug(ctx context.Context, db Querier, shareSlug string) (models.Poll, error) {
	p, err := ScanPoll(db.QueryRowContext(ctx, `SELECT `+PollColumns+` FROM poll WHERE share_slug = $1`, shareSlug))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Poll{}, ErrPollNotFound
	}
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to query poll: %w", err)
	}
	return p, nil
}

// GetOptions returns a poll's options ordered by ID, which is also the
// candidate order used for counting.
func GetOptions(ctx context.Context, db Querier, pollID string) ([]models.Option, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, poll_id, label, state
		FROM option
		WHERE poll_id = $1
		ORDER BY id
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query options: %w", err)
	}
	defer rows.Close()

	options := []models.Option{}
	for rows.Next() {
		var opt models.Option
		if err := rows.Scan(&opt.ID, &opt.PollID, &opt.Label, &opt.State); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		options = append(options, opt)
	}
	return options, rows.Err()
}

// LockOpen takes the poll's row lock inside tx, provided the poll is still
// open. A ballot written after LockOpen either commits before a concurrent
// close reads the ballots or is turned away with ErrPollNotOpen.
func LockOpen(ctx context.Context, tx *sql.Tx, pollID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE poll SET status = status WHERE id = $1 AND status = $2
	`, pollID, models.StatusOpen)
	if err != nil {
		return fmt.Errorf("failed to lock poll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to lock poll: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := GetPoll(ctx, tx, pollID); err != nil {
		return err
	}
	return ErrPollNotOpen
}

// Election is everything needed to count a poll.
type Election struct {
	Poll        models.Poll
	Options     []models.Option
	Ballots     []schulze.WeightedBallot
	BallotCount int
}

// Candidates returns the option IDs in counting order.
func (e *Election) Candidates() []string {
	ids := make([]string, len(e.Options))
	for i, o := range e.Options {
		ids[i] = o.ID
	}
	return ids
}

// Stars is the number of star levels voters could choose from.
func (e *Election) Stars() int {
	return models.Stars(len(e.Options), e.Poll.MinStars, e.Poll.MaxStars)
}

// Seats is the number of winners to elect: the poll setting for
// proportional polls, 0 (rank everyone) for sorted polls.
func (e *Election) Seats() int {
	if e.Poll.Method == models.MethodSchulzeSTV {
		return e.Poll.Winners
	}
	return 0
}

// Label returns the option label for id, or id if unknown.
func (e *Election) Label(id string) string {
	for _, o := range e.Options {
		if o.ID == id {
			return o.Label
		}
	}
	return id
}

// Load reads a poll, its options and its ballots, merging identical
// rankings into weighted ballots. Pass a *sql.Tx to read a consistent view.
func Load(ctx context.Context, db Querier, pollID string) (*Election, error) {
	poll, err := GetPoll(ctx, db, pollID)
	if err != nil {
		return nil, err
	}
	options, err := GetOptions(ctx, db, pollID)
	if err != nil {
		return nil, err
	}
	rankings, err := loadRankings(ctx, db, pollID)
	if err != nil {
		return nil, err
	}

	e := &Election{Poll: poll, Options: options, BallotCount: len(rankings)}
	if len(options) == 0 {
		return e, nil
	}
	e.Ballots, err = schulze.Aggregate(e.Candidates(), rankings)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ballots: %w", err)
	}
	return e, nil
}

// loadRankings returns one ranking per ballot, in ballot ID order. A ballot
// without rank rows ranks every option equally.
func loadRankings(ctx context.Context, db Querier, pollID string) ([]schulze.Ranking, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM ballot WHERE poll_id = $1 ORDER BY id`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ballots: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan ballot: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ballots: %w", err)
	}

	byBallot := make(map[string]schulze.Ranking, len(ids))
	for _, id := range ids {
		byBallot[id] = schulze.Ranking{}
	}

	rows, err = db.QueryContext(ctx, `
		SELECT r.ballot_id, r.option_id, r.rank_value
		FROM ballot_rank r
		JOIN ballot b ON r.ballot_id = b.id
		WHERE b.poll_id = $1
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ranks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ballotID, optionID string
		var rank int
		if err := rows.Scan(&ballotID, &optionID, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan rank: %w", err)
		}
		if r, ok := byBallot[ballotID]; ok {
			r[optionID] = rank
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ranks: %w", err)
	}

	rankings := make([]schulze.Ranking, len(ids))
	for i, id := range ids {
		rankings[i] = byBallot[id]
	}
	return rankings, nil
}
