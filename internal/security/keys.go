package security

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidKey is returned when PEM, key type, or secret is invalid.
var ErrInvalidKey = errors.New("invalid key")

// minHMACSecretLen is the shortest HS256 secret accepted (256 bits).
const minHMACSecretLen = 32

// SigningKey is one JWT signing/verification key. Access and refresh tokens each get their own.
type SigningKey struct {
	method jwt.SigningMethod
	sign   interface{}
	verify interface{}
	// fingerprint identifies the key material so NewTokenIssuer can reject a shared key.
	fingerprint string
}

// Alg returns the JWT alg header value for the key (HS256, RS256 or ES256).
func (k SigningKey) Alg() string {
	if k.method == nil {
		return ""
	}
	return k.method.Alg()
}

// NewHMACKey returns an HS256 key for secret. The secret must be at least 32 bytes.
func NewHMACKey(secret []byte) (SigningKey, error) {
	if len(secret) < minHMACSecretLen {
		return SigningKey{}, ErrInvalidKey
	}
	s := bytes.Clone(secret)
	return SigningKey{
		method:      jwt.SigningMethodHS256,
		sign:        s,
		verify:      s,
		fingerprint: "hs256:" + string(SecretDigest(string(s))),
	}, nil
}

// NewAsymmetricKey returns an RS256 or ES256 key from a PEM private key (inline or file path).
// The verification key is the signer's public half.
func NewAsymmetricKey(privatePEM string) (SigningKey, error) {
	signer, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return SigningKey{}, err
	}
	var method jwt.SigningMethod
	switch KeyAlg(signer.Public()) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	default:
		return SigningKey{}, ErrInvalidKey
	}
	der, err := x509.MarshalPKIXPublicKey(signer.Public())
	if err != nil {
		return SigningKey{}, ErrInvalidKey
	}
	return SigningKey{
		method:      method,
		sign:        signer,
		verify:      signer.Public(),
		fingerprint: method.Alg() + ":" + string(SecretDigest(string(der))),
	}, nil
}

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
// Literal "\n" sequences in inline PEM (common in env vars) are converted to newlines.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// KeyAlg returns "RS256" for RSA and "ES256" for ECDSA P-256; empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		if k.Curve.Params().Name == "P-256" {
			return "ES256"
		}
		return ""
	default:
		return ""
	}
}
