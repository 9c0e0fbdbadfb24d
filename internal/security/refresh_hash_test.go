package security

import "testing"

func TestSecretDigest_Consistent(t *testing.T) {
	d1 := SecretDigest("test-refresh-token-123")
	d2 := SecretDigest("test-refresh-token-123")
	if string(d1) != string(d2) {
		t.Errorf("SecretDigest not consistent: %q vs %q", d1, d2)
	}
	if len(d1) != 64 {
		t.Errorf("digest length = %d, want 64 (SHA-256 hex)", len(d1))
	}
	if string(SecretDigest("token-1")) == string(SecretDigest("token-2")) {
		t.Error("SecretDigest produced same digest for different tokens")
	}
}

func TestHashSecret_CompareSecret(t *testing.T) {
	h := NewHasher(4)
	// Longer than bcrypt's 72-byte input limit; the digest keeps it hashable.
	token := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiJ1c2VyLTEiLCJqdGkiOiJhYmMiLCJleHAiOjE3MDAwMDAwMDB9.sig"
	hash, err := HashSecret(h, token)
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	if hash == token {
		t.Fatal("hash must not equal the raw token")
	}
	if !CompareSecret(h, hash, token) {
		t.Error("CompareSecret should match the original token")
	}
	if CompareSecret(h, hash, token+"x") {
		t.Error("CompareSecret should not match a different token")
	}
}
