// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidAdminKey = errors.New("invalid admin key")

// keyed returns HMAC-SHA256(salt, parts...). Parts are separated by a zero
// byte so ("ab","c") and ("a","bc") differ.
func keyed(salt string, parts ...string) []byte {
	h := hmac.New(sha256.New, []byte(salt))
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return h.Sum(nil)
}

// GenerateID creates a random hex ID of the specified byte length
func GenerateID(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewSnapshotID returns a time-ordered UUIDv7 for a result snapshot, so
// snapshots of one poll sort by creation.
func NewSnapshotID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate snapshot ID: %w", err)
	}
	return id.String(), nil
}

// GenerateAdminKey derives the admin key for a poll. Deterministic, so it
// never has to be stored.
func GenerateAdminKey(pollID, salt string) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(keyed(salt, pollID)), "=")
}

// ValidateAdminKey checks if the provided admin key is valid for the poll
func ValidateAdminKey(pollID, adminKey, salt string) error {
	expected := GenerateAdminKey(pollID, salt)
	if !hmac.Equal([]byte(adminKey), []byte(expected)) {
		return ErrInvalidAdminKey
	}
	return nil
}

// GenerateVoterToken creates a random 192-bit voter secret, URL-safe base64
// without padding.
func GenerateVoterToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate voter token: %w", err)
	}
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b), "="), nil
}

// GenerateShareSlug creates a short, deterministic base62 slug for a poll.
func GenerateShareSlug(pollID, salt string) string {
	return base62Encode(keyed(salt, pollID)[:8])
}

// TieSeed derives the seed used to break ties when a poll is counted.
// The same poll always resolves a tie the same way, and voters cannot
// predict the draw without the salt.
func TieSeed(pollID, salt string) uint64 {
	return binary.BigEndian.Uint64(keyed(salt, "tie", pollID)[:8])
}

// base62Encode converts up to 8 bytes to base62 (0-9, a-z, A-Z)
func base62Encode(data []byte) string {
	const base62Chars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	var num uint64
	for i := 0; i < len(data) && i < 8; i++ {
		num = num<<8 | uint64(data[i])
	}
	if num == 0 {
		return "0"
	}

	result := make([]byte, 0, 11) // max length for uint64
	for num > 0 {
		result = append(result, base62Chars[num%62])
		num /= 62
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return string(result)
}

// HashIP creates a one-way hash of an IP address for privacy.
// 16 hex chars are enough for deduplication.
func HashIP(ip, salt string) string {
	return hex.EncodeToString(keyed(salt, "ip", ip)[:8])
}
