package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// SecretDigest returns the hex-encoded SHA-256 of a raw refresh token. The digest is what gets fed
// to the SecretHasher: it has a fixed length (64 bytes, under bcrypt's 72-byte limit) and never
// leaves the process, only its slow hash is persisted.
func SecretDigest(token string) []byte {
	h := sha256.Sum256([]byte(token))
	dst := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(dst, h[:])
	return dst
}

// HashSecret hashes the digest of token with h.
func HashSecret(h SecretHasher, token string) (string, error) {
	return h.Hash(SecretDigest(token))
}

// CompareSecret reports whether token matches the stored hash using h's own compare.
func CompareSecret(h SecretHasher, hash, token string) bool {
	return h.Compare(hash, SecretDigest(token)) == nil
}
