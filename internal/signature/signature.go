// Package signature implements the symmetric request-signing scheme of the
// HUMAN protocol: HMAC-SHA256 over the exact payload bytes, exchanged as a
// lowercase hex string (or base64 for older callers).
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/google/uuid"
)

// AnyKey is the sentinel key value that disables signature verification.
// Configuring it makes Verify accept every payload/signature pair.
const AnyKey = "*"

// KeyBytes derives the raw HMAC key material from a configured secret.
// UUID-shaped secrets (the usual form handed out by the job flow) are
// converted to their 16 raw bytes; anything else is used verbatim.
func KeyBytes(secret string) []byte {
	if id, err := uuid.Parse(secret); err == nil {
		key := make([]byte, len(id))
		copy(key, id[:])
		return key
	}
	return []byte(secret)
}

// Sign computes the hex-encoded HMAC-SHA256 signature of payload under key.
func Sign(key string, payload []byte) string {
	return hex.EncodeToString(mac(key, payload))
}

// SignBase64 computes the base64-encoded signature variant. Kept for
// compatibility with callers that predate the hex scheme.
func SignBase64(key string, payload []byte) string {
	return base64.StdEncoding.EncodeToString(mac(key, payload))
}

// Verify reports whether sig is a valid signature of payload under key.
// Both the hex and the legacy base64 encodings are accepted. When key is
// AnyKey, verification is disabled and Verify returns true unconditionally.
func Verify(key string, payload []byte, sig string) bool {
	if key == AnyKey {
		return true
	}

	expected := mac(key, payload)
	if decoded, err := hex.DecodeString(sig); err == nil && hmac.Equal(expected, decoded) {
		return true
	}
	if decoded, err := base64.StdEncoding.DecodeString(sig); err == nil && hmac.Equal(expected, decoded) {
		return true
	}
	return false
}

func mac(key string, payload []byte) []byte {
	h := hmac.New(sha256.New, KeyBytes(key))
	h.Write(payload)
	return h.Sum(nil)
}
