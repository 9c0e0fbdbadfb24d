package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrHashMismatch is returned by Compare when the secret does not match the stored hash.
	ErrHashMismatch = errors.New("hash mismatch")
	// ErrInvalidHash is returned when a stored hash cannot be decoded.
	ErrInvalidHash = errors.New("invalid hash format")
)

// SecretHasher hashes refresh-token secrets with a slow, salted algorithm and verifies them with
// the algorithm's own compare. Callers must not log or persist plaintext secrets.
type SecretHasher interface {
	Hash(secret []byte) (string, error)
	Compare(hash string, secret []byte) error
}

// NewSecretHasher returns the hasher for algorithm ("bcrypt" or "argon2id"). bcryptCost is only
// used for bcrypt.
func NewSecretHasher(algorithm string, bcryptCost int) (SecretHasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", "bcrypt":
		return NewHasher(bcryptCost), nil
	case "argon2id", "argon2":
		return NewArgon2Hasher(DefaultArgon2Params), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// Hasher hashes and verifies secrets using bcrypt. bcrypt reads at most 72 bytes, so callers
// hash a fixed-length digest (see SecretDigest) rather than a full JWT.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to 4–31.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of secret suitable for storage.
func (h *Hasher) Hash(secret []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(secret, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare returns nil if secret matches hash, ErrHashMismatch if it does not.
func (h *Hasher) Compare(hash string, secret []byte) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), secret)
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrHashMismatch
	}
	return err
}

// Argon2Params configures argon2id hashing.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params is 64 MiB, 3 passes, 2 lanes.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Argon2Hasher hashes secrets with argon2id and encodes parameters, salt and key in the PHC
// string format ($argon2id$v=19$m=...,t=...,p=...$salt$key).
type Argon2Hasher struct {
	params Argon2Params
}

// NewArgon2Hasher returns an argon2id hasher with the given parameters.
func NewArgon2Hasher(p Argon2Params) *Argon2Hasher {
	if p.SaltLength == 0 {
		p.SaltLength = DefaultArgon2Params.SaltLength
	}
	if p.KeyLength == 0 {
		p.KeyLength = DefaultArgon2Params.KeyLength
	}
	if p.Iterations == 0 {
		p.Iterations = 1
	}
	if p.Parallelism == 0 {
		p.Parallelism = 1
	}
	if p.Memory == 0 {
		p.Memory = DefaultArgon2Params.Memory
	}
	return &Argon2Hasher{params: p}
}

// Hash returns the encoded argon2id hash of secret with a fresh random salt.
func (h *Argon2Hasher) Hash(secret []byte) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey(secret, salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Compare recomputes the key with the parameters and salt stored in hash.
func (h *Argon2Hasher) Compare(hash string, secret []byte) error {
	p, salt, key, err := decodeArgon2(hash)
	if err != nil {
		return err
	}
	other := argon2.IDKey(secret, salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	if subtle.ConstantTimeCompare(key, other) != 1 {
		return ErrHashMismatch
	}
	return nil
}

func decodeArgon2(encoded string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, ErrInvalidHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
