// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides key, token and ID generation.

Everything derived from a poll ID uses HMAC-SHA256 keyed with a server salt,
so admin keys, share slugs and tie seeds are reproducible without being
stored:

	adminKey := auth.GenerateAdminKey(pollID, salt)
	err := auth.ValidateAdminKey(pollID, adminKey, salt)
	slug := auth.GenerateShareSlug(pollID, slugSalt)   // base62, at most 11 chars
	seed := auth.TieSeed(pollID, salt)                 // feeds schulze.SeededTieBreaker

Voter tokens are random 192-bit secrets handed out when a username is
claimed:

	token, err := auth.GenerateVoterToken()

Record IDs are random hex (GenerateID) except result snapshots, which use
UUIDv7 (NewSnapshotID) so they sort by creation time.

HashIP stores a 64-bit keyed hash of the voter's address instead of the
address itself.
*/
package auth
