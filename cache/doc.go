// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package cache keeps rendered results of closed polls in Redis so repeated
// reads skip the database. Nop stands in when no REDIS_URL is configured.
package cache
