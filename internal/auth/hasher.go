package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashKey creates a SHA-256 hash of a credential.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// VerifyKey reports whether presented matches expected using a constant-time
// comparison of their hashes. An empty expected value never matches.
func VerifyKey(presented, expected string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashKey(presented)), []byte(HashKey(expected))) == 1
}

// ParseBearer extracts the token from an "Authorization: Bearer <token>"
// header value.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("authorization header is empty")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("authorization header is not a bearer token")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("bearer token is empty")
	}
	return token, nil
}

// MaskKey returns a masked version of a credential for logging.
func MaskKey(key string) string {
	if len(key) <= 12 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
