// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Quickly Rank API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg, router.Deps{Closer: closer, Cache: c})

# Endpoints

Health and metrics:

	GET /health
	GET /metrics

Poll management (admin, requires X-Admin-Key):

	POST /polls                  - Create poll
	GET  /polls/{id}/admin       - Get poll details
	POST /polls/{id}/options     - Add option
	POST /polls/{id}/publish     - Open for voting
	POST /polls/{id}/close       - Count and seal results
	GET  /polls/{id}/raw-ballots - Canonical ballot dump (closed only)

Voting (public, uses share slug):

	POST /polls/{slug}/claim-username - Claim voter identity
	POST /polls/{slug}/ballots        - Submit/update ranked ballot
	GET  /polls/{slug}/my-ballot      - Read back own ballot

Results (public):

	GET /polls/{slug}              - Poll info and options
	GET /polls/{slug}/results      - Final results (closed only)
	GET /polls/{slug}/ballot-count - Vote count
	GET /polls/{slug}/preview      - Compact preview data

Every API route is wrapped in middleware.WithLogging.
*/
package router
