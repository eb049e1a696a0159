// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"encoding/json"
	"time"

	"github.com/danielhkuo/quickly-rank/schulze"
)

// Poll status constants
const (
	StatusDraft  = "draft"
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Voting method constants
const (
	MethodSchulze    = string(schulze.MethodSingle)
	MethodSchulzePR  = string(schulze.MethodSorted)
	MethodSchulzeSTV = string(schulze.MethodSTV)
)

// Option states set when a poll closes
const (
	StateApproved = schulze.StateApproved
	StateDenied   = schulze.StateDenied
)

// DefaultStars is the default for both max_stars and min_stars.
const DefaultStars = 5

// Stars returns the number of star levels offered for a poll with
// optionCount options: the option count capped at maxStars, then raised
// to minStars. Valid ranks are 1..Stars+1; Stars+1 means "not ranked".
func Stars(optionCount, minStars, maxStars int) int {
	stars := optionCount
	if maxStars < stars {
		stars = maxStars
	}
	if minStars > stars {
		stars = minStars
	}
	return stars
}

// Request types

type CreatePollRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatorName string     `json:"creator_name"`
	Method      string     `json:"method,omitempty"`    // schulze (default), schulze_pr, schulze_stv
	Winners     int        `json:"winners,omitempty"`   // seats for schulze_stv, default 1
	MaxStars    int        `json:"max_stars,omitempty"` // default 5
	MinStars    int        `json:"min_stars,omitempty"` // default 5
	ClosesAt    *time.Time `json:"closes_at,omitempty"`
}

type AddOptionRequest struct {
	Label string `json:"label"`
}

type ClaimUsernameRequest struct {
	Username string `json:"username"`
}

// option_id -> rank, 1 is best. Options left out rank last.
type SubmitBallotRequest struct {
	Ranks map[string]int `json:"ranks"`
}

// Response types

type CreatePollResponse struct {
	PollID   string `json:"poll_id"`
	AdminKey string `json:"admin_key"`
}

type AddOptionResponse struct {
	OptionID string `json:"option_id"`
}

type PublishPollResponse struct {
	ShareSlug string `json:"share_slug"`
	ShareURL  string `json:"share_url"`
}

type ClaimUsernameResponse struct {
	VoterToken string `json:"voter_token"`
}

type SubmitBallotResponse struct {
	BallotID string `json:"ballot_id"`
	Message  string `json:"message"`
}

type MyBallotResponse struct {
	BallotID    string         `json:"ballot_id"`
	Ranks       map[string]int `json:"ranks"`
	Stars       int            `json:"stars"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

type ClosePollResponse struct {
	ClosedAt time.Time      `json:"closed_at"`
	Snapshot ResultSnapshot `json:"snapshot"`
}

type PollPreviewResponse struct {
	Title       string `json:"title"`
	Status      string `json:"status"`
	Method      string `json:"method"`
	OptionCount int    `json:"option_count"`
	BallotCount int    `json:"ballot_count"`
}

// RawBallotsResponse is the audit dump of a poll's ballot multiset.
// Ballots is the canonical encoding hashed into InputsHash.
type RawBallotsResponse struct {
	PollID      string          `json:"poll_id"`
	Candidates  []string        `json:"candidates"`
	Ballots     json.RawMessage `json:"ballots"`
	BallotCount int             `json:"ballot_count"`
	InputsHash  string          `json:"inputs_hash"`
}

// Domain types

type Poll struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	CreatorName     string     `json:"creator_name"`
	Method          string     `json:"method"`
	Winners         int        `json:"winners"`
	MaxStars        int        `json:"max_stars"`
	MinStars        int        `json:"min_stars"`
	Status          string     `json:"status"`
	ShareSlug       *string    `json:"share_slug,omitempty"`
	ClosesAt        *time.Time `json:"closes_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	FinalSnapshotID *string    `json:"final_snapshot_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type Option struct {
	ID     string  `json:"id"`
	PollID string  `json:"poll_id"`
	Label  string  `json:"label"`
	State  *string `json:"state,omitempty"` // approved / denied once closed
}

type PollWithOptions struct {
	Poll    Poll     `json:"poll"`
	Options []Option `json:"options"`
	Stars   int      `json:"stars"`
}

type Ballot struct {
	ID          string    `json:"id"`
	PollID      string    `json:"poll_id"`
	VoterToken  string    `json:"-"` // Never expose in JSON
	SubmittedAt time.Time `json:"submitted_at"`
	IPHash      *string   `json:"-"` // Never expose in JSON
	UserAgent   *string   `json:"-"` // Never expose in JSON
}

type Rank struct {
	BallotID string `json:"ballot_id"`
	OptionID string `json:"option_id"`
	Rank     int    `json:"rank"`
}

// Schulze Result Types

// OptionResult is one option's place in a closed poll. Position is the
// 1-indexed elimination round for schulze_pr and 0 otherwise.
type OptionResult struct {
	OptionID string `json:"option_id"`
	Label    string `json:"label"`
	State    string `json:"state,omitempty"`
	Position int    `json:"position,omitempty"`
}

type ResultSnapshot struct {
	ID          string         `json:"id"`
	PollID      string         `json:"poll_id"`
	Method      string         `json:"method"`
	ComputedAt  time.Time      `json:"computed_at"`
	Winners     []OptionResult `json:"winners"`
	Losers      []OptionResult `json:"losers"`
	Result      schulze.Result `json:"result"`
	BallotCount int            `json:"ballot_count"`
	InputsHash  string         `json:"inputs_hash"` // SHA-256 of the canonical ballot multiset
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
