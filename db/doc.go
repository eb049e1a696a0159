// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the store and creates its schema.

# Opening

Open accepts "sqlite" (modernc.org/sqlite, the default) or "postgres"
(lib/pq) and pings before returning:

	conn, err := db.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL)

SQLite connections are limited to one and get foreign keys and a busy
timeout through DSN pragmas.

# Schema Creation

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
The same DDL runs on both databases: TEXT ids, $n placeholders and
CURRENT_TIMESTAMP defaults.

# Tables

  - poll: metadata, counting method, seats, star range and lifecycle state
  - option: candidates; state is set to approved/denied when the poll closes
  - username_claim: maps usernames to voter tokens
  - ballot: one ballot per voter per poll
  - ballot_rank: one rank per option per ballot (1 is best)
  - result_snapshot: immutable count result with its inputs hash

# Relationships

	poll 1──* option
	poll 1──* username_claim
	poll 1──* ballot
	ballot 1──* ballot_rank *──1 option
	poll 1──* result_snapshot

All foreign keys use ON DELETE CASCADE.

# Errors

IsUniqueViolation recognises unique and primary key failures from either
driver, so handlers can map them to 409 Conflict.
*/
package db
