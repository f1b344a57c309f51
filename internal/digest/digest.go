// Package digest holds the one-way transform applied to personally identifying input
// before it leaves the client.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Func is a fallible one-way transform.
type Func func(string) (string, error)

// SHA256Hex returns the lowercase hex SHA-256 digest of s. No salt is applied, so equal
// inputs always map to equal digests.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Hash adapts SHA256Hex to Func.
func Hash(s string) (string, error) {
	return SHA256Hex(s), nil
}

// Email applies hash to a non-empty email. Empty input is returned unchanged and hash is
// not called: a digest of nothing would look like a real value downstream.
func Email(s string, hash Func) (string, error) {
	if s == "" {
		return s, nil
	}
	return hash(s)
}
