// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package scheduler closes polls automatically once their closes_at passes,
// on the cron schedule given by AUTO_CLOSE_SCHEDULE (default "@every 1m").
// Polls without ballots are left open until someone votes or the admin
// closes them.
package scheduler
