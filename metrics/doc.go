// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package metrics defines the Prometheus collectors for HTTP traffic, poll
// counting and scheduled closes. Default is registered globally and exposed
// by the router on /metrics; tests build their own with New and a fresh
// registry.
package metrics
