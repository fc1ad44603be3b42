package oauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"golang.org/x/oauth2"
)

// computeCodeChallenge derives the code challenge for a verifier using the
// given method. Supported methods are "plain" and "S256".
func computeCodeChallenge(codeVerifier, method string) (string, error) {
	switch method {
	case "plain":
		return codeVerifier, nil
	case "S256":
		return oauth2.S256ChallengeFromVerifier(codeVerifier), nil
	default:
		return "", errors.New("unsupported code challenge method")
	}
}

// verifyCodeChallenge reports whether the verifier matches the stored
// challenge. The comparison is constant-time so the check leaks nothing
// about how much of the challenge matched.
func verifyCodeChallenge(codeVerifier, challenge, method string) bool {
	computed, err := computeCodeChallenge(codeVerifier, method)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// generateSecureToken returns n random bytes encoded as unpadded URL-safe
// base64. Used for authorization codes and client secrets.
func generateSecureToken(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// GenerateAuthorizationCode returns a fresh 32-byte authorization code.
func GenerateAuthorizationCode() string {
	return generateSecureToken(32)
}

// GenerateClientSecret returns a fresh 32-byte client secret.
func GenerateClientSecret() string {
	return generateSecureToken(32)
}
