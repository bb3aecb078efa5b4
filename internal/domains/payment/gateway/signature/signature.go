// Package signature generates and verifies provider authenticity proofs.
// Every comparison is constant-time and case-insensitive on hex digests.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// =====================================================
// HMAC-SHA256
// =====================================================

// HMACSHA256Hex returns hex(HMAC-SHA256(payload, secret)).
func HMACSHA256Hex(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256 checks a hex signature over the raw payload bytes.
// An empty secret or signature never verifies.
func VerifyHMACSHA256(payload []byte, secret, received string) bool {
	if secret == "" || received == "" {
		return false
	}
	return Equal(HMACSHA256Hex(payload, secret), received)
}

// =====================================================
// PIPE-DELIMITED SHA-512
// =====================================================

// SHA512Hex returns the lowercase hex SHA-512 of s.
func SHA512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SHA512Pipe hashes the fields joined by "|", in the given order.
func SHA512Pipe(fields ...string) string {
	return SHA512Hex(strings.Join(fields, "|"))
}

// =====================================================
// COMPARISON
// =====================================================

// Equal compares two hex digests in constant time, ignoring case and
// surrounding whitespace.
func Equal(expected, received string) bool {
	a := []byte(strings.ToLower(strings.TrimSpace(expected)))
	b := []byte(strings.ToLower(strings.TrimSpace(received)))
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
