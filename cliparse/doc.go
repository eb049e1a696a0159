// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Config Fields

  - Port: Server listen port (default: 3318)
  - DatabaseURL: SQLite file or PostgreSQL connection string (required)
  - DatabaseType: "sqlite" (default) or "postgres"
  - AdminKeySalt: Secret for admin key HMAC and tie-break seeds (required)
  - PollSlugSalt: Secret for share slug generation (required)
  - BaseURL, LogLevel: Share links and log verbosity
  - RedisURL, OTLPEndpoint: Optional integrations, empty disables them
  - STVMaxSubsets, STVMaxWinners, STVTimeout, STVWorkers: Counting limits
  - AutoCloseSchedule: Cron spec for closing overdue polls ("off" disables)

# CLI Flags

	-p           Server port
	-d           Database URL
	-t           Database type
	-env         Path to a .env file
	-base-url    Public base URL
	-log-level   Log level
	-admin-salt  Admin key salt
	-slug-salt   Poll slug salt

# Environment Variables

Flags fall back to environment variables, which may come from a .env file:

	PORT           → -p
	DATABASE_URL   → -d
	DATABASE_TYPE  → -t
	ADMIN_KEY_SALT → -admin-salt
	POLL_SLUG_SALT → -slug-salt
	BASE_URL       → -base-url
	LOG_LEVEL      → -log-level

REDIS_URL, OTEL_EXPORTER_OTLP_ENDPOINT, AUTO_CLOSE_SCHEDULE and the STV_*
limits are read from the environment only. CLI flags take precedence over
environment variables.

# Example

	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	conn, err := db.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL)
	// ...
	engineCfg := schulze.Config{Method: schulze.MethodSTV, Winners: 3, Budget: cfg.Budget()}
*/
package cliparse
