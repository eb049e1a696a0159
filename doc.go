// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Quickly Rank API server.

Quickly Rank is a group polling service where voters rank options with
stars and the outcome is decided by the Schulze method: a single winner,
a full ordering, or a proportional committee (Schulze STV).

# Starting the Server

The server reads environment variables, an optional .env file, or CLI flags:

	DATABASE_URL=quickly-rank.db ADMIN_KEY_SALT=... POLL_SLUG_SALT=... go run .

Or with flags:

	go run . -p 3318 -t sqlite -d quickly-rank.db

# Configuration

Required settings:

  - DATABASE_URL (-d): SQLite file or PostgreSQL connection string
  - ADMIN_KEY_SALT (--admin-salt): Secret for admin key HMAC and tie seeds
  - POLL_SLUG_SALT (--slug-salt): Secret for share slug generation

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - REDIS_URL: Enables the closed-results cache
  - OTEL_EXPORTER_OTLP_ENDPOINT: Enables trace export
  - AUTO_CLOSE_SCHEDULE: Cron spec for closing polls past closes_at, or "off"
  - STV_MAX_SUBSETS, STV_MAX_WINNERS, STV_TIMEOUT, STV_WORKERS: Counting limits
  - LOG_LEVEL: debug, info, warn or error

# Architecture

  - schulze: The counting engine (single, sorted and proportional)
  - lifecycle: Loading elections, closing polls and storing snapshots
  - handlers: HTTP request handlers (polls, voting, results)
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, tracing, JSON helpers
  - scheduler: Cron-driven auto-close
  - cache: Redis results cache
  - metrics, observability: Prometheus metrics and OpenTelemetry tracing
  - models: Request/response types
  - auth: Token generation and validation
  - db: Connections and schema
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main
