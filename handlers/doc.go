// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Quickly Rank API.

# Handler Types

Each handler is a struct with database and config dependencies:

  - PollHandler: Poll lifecycle (create, publish, close, audit)
  - VotingHandler: Username claims and ranked ballot submission
  - ResultsHandler: Poll info and results retrieval

Handlers are created via constructor functions:

	closer := lifecycle.NewCloser(db, cfg, metrics.Default)
	pollHandler := handlers.NewPollHandler(db, cfg, closer)
	votingHandler := handlers.NewVotingHandler(db, cfg, metrics.Default)
	resultsHandler := handlers.NewResultsHandler(db, cfg, cache.Nop{})

# Poll Lifecycle

Polls progress through three states: draft → open → closed

	POST /polls                  → CreatePoll (returns admin_key)
	POST /polls/{id}/options     → AddOption (draft only)
	POST /polls/{id}/publish     → PublishPoll (generates share_slug)
	POST /polls/{id}/close       → ClosePoll (counts ballots, stores snapshot)
	GET  /polls/{id}/admin       → GetPollAdmin
	GET  /polls/{id}/raw-ballots → GetRawBallots (closed only)

Admin operations require the X-Admin-Key header. The counting method
(schulze, schulze_pr or schulze_stv) and the number of seats are fixed at
creation.

# Voting Flow

Voters interact via the share slug:

	POST /polls/{slug}/claim-username → ClaimUsername (returns voter_token)
	POST /polls/{slug}/ballots        → SubmitBallot (create or update)
	GET  /polls/{slug}/my-ballot      → GetMyBallot

Voter operations require the X-Voter-Token header. A ballot maps option IDs
to star ranks, 1 being best. Options left out are stored one past the
lowest star, so every stored ballot ranks every option.

# Results

	GET /polls/{slug}              → GetPoll
	GET /polls/{slug}/results      → GetResults (403 until closed)
	GET /polls/{slug}/ballot-count → GetBallotCount
	GET /polls/{slug}/preview      → GetPreview

Closed results never change and are cached by share slug.
*/
package handlers
