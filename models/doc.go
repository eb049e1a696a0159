// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON:

  - CreatePollRequest: title, description, creator_name, method, winners,
    max_stars, min_stars, closes_at
  - AddOptionRequest: label
  - ClaimUsernameRequest: username
  - SubmitBallotRequest: ranks (map[string]int, 1 is best)

# Response Types

Types for JSON responses:

  - CreatePollResponse: poll_id, admin_key
  - AddOptionResponse: option_id
  - PublishPollResponse: share_slug, share_url
  - ClaimUsernameResponse: voter_token
  - SubmitBallotResponse: ballot_id, message
  - MyBallotResponse: ballot_id, ranks, stars, submitted_at
  - ClosePollResponse: closed_at, snapshot
  - PollPreviewResponse: title, status, method, counts
  - RawBallotsResponse: canonical ballot multiset and its hash
  - ErrorResponse: error, message

# Domain Types

Internal data structures:

  - Poll: poll metadata, counting method and lifecycle state
  - Option: voting option with label and, once closed, its state
  - Ballot: voter submission metadata
  - Rank: one option's rank on a ballot
  - OptionResult: an option's outcome in a closed poll
  - ResultSnapshot: immutable result record

# Constants

Status values:

	StatusDraft  = "draft"
	StatusOpen   = "open"
	StatusClosed = "closed"

Voting methods:

	MethodSchulze    = "schulze"     // single winner
	MethodSchulzePR  = "schulze_pr"  // full ranking
	MethodSchulzeSTV = "schulze_stv" // proportional, `winners` seats

Option states:

	StateApproved = "approved"
	StateDenied   = "denied"

# Stars

Ballots rank options on a star scale. Stars(optionCount, minStars,
maxStars) gives its size; ranks 1..stars are explicit choices and
stars+1 marks an option the voter left unranked.
*/
package models
