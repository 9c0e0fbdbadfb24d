package security

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"golang.org/x/oauth2"
)

// PKCE verifier length bounds (RFC 7636 section 4.1).
const (
	MinVerifierLen = 43
	MaxVerifierLen = 128
)

// ErrInvalidVerifier is returned for a code verifier outside 43–128 unreserved characters.
var ErrInvalidVerifier = errors.New("invalid pkce code verifier")

// GenerateVerifier returns a 43-character URL-safe verifier carrying 256 bits of randomness.
// crypto/rand failure is fatal to the process and is not retried.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// DeriveChallenge returns the S256 challenge: base64url (no padding) of SHA-256(verifier).
func DeriveChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GenerateState returns a random anti-CSRF token for the authorization redirect.
func GenerateState() string {
	return rand.Text()
}

// ValidateVerifier checks length and the unreserved character set [A-Za-z0-9-._~].
func ValidateVerifier(verifier string) error {
	if len(verifier) < MinVerifierLen || len(verifier) > MaxVerifierLen {
		return ErrInvalidVerifier
	}
	for i := 0; i < len(verifier); i++ {
		c := verifier[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return ErrInvalidVerifier
		}
	}
	return nil
}

// VerifyChallenge reports whether challenge is the S256 challenge of verifier.
func VerifyChallenge(verifier, challenge string) bool {
	return subtle.ConstantTimeCompare([]byte(DeriveChallenge(verifier)), []byte(challenge)) == 1
}
