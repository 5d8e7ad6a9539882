package emailcrypto

import (
	"strings"
	"testing"
)

func newTestCrypto(t *testing.T) *Crypto {
	t.Helper()
	c, err := New("unit-test-secret", false)
	if err != nil {
		t.Fatalf("Failed to construct crypto: %v", err)
	}
	return c
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := newTestCrypto(t)

	ct, err := c.EncryptForStorage("  Alice@Example.COM ")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	plain, err := c.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if plain != "alice@example.com" {
		t.Errorf("Expected normalized round trip, got %q", plain)
	}
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	c := newTestCrypto(t)

	a, err := c.EncryptForStorage("alice@example.com")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	b, err := c.EncryptForStorage("alice@example.com")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if a == b {
		t.Error("Two encryptions of the same email produced identical ciphertexts")
	}
}

func TestDecrypt_Failures(t *testing.T) {
	c := newTestCrypto(t)
	other, err := New("a-different-secret", false)
	if err != nil {
		t.Fatalf("Failed to construct crypto: %v", err)
	}

	ct, _ := c.EncryptForStorage("alice@example.com")

	tests := []struct {
		name  string
		input string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"too short", "YWJj"},
		{"tampered", ct[:len(ct)-5] + "AAAA="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Decrypt(tt.input); err == nil {
				t.Errorf("Expected decrypt error for %q", tt.name)
			}
		})
	}

	if _, err := other.Decrypt(ct); err == nil {
		t.Error("Expected decrypt error with wrong key")
	}
}

func TestLookupHash_DeterministicAndCaseInsensitive(t *testing.T) {
	c := newTestCrypto(t)

	h1 := c.LookupHash("alice@example.com")
	h2 := c.LookupHash(strings.ToUpper("alice@example.com"))
	h3 := c.LookupHash("  alice@example.com  ")

	if h1 == "" || h1 != h2 || h1 != h3 {
		t.Errorf("Lookup hash not stable across casing/whitespace: %q %q %q", h1, h2, h3)
	}

	if c.LookupHash("bob@example.com") == h1 {
		t.Error("Different emails hashed to the same value")
	}
}

func TestVerifyLookup(t *testing.T) {
	c := newTestCrypto(t)
	h := c.LookupHash("alice@example.com")

	if !c.VerifyLookup("Alice@Example.com", h) {
		t.Error("VerifyLookup rejected a matching email")
	}
	if c.VerifyLookup("bob@example.com", h) {
		t.Error("VerifyLookup accepted a non-matching email")
	}
	if c.VerifyLookup("", h) || c.VerifyLookup("alice@example.com", "") {
		t.Error("VerifyLookup accepted empty input")
	}
}

func TestNew_ProductionRequiresSecret(t *testing.T) {
	if _, err := New("", true); err != ErrNoSecret {
		t.Errorf("Expected ErrNoSecret in production, got %v", err)
	}
	if _, err := New("", false); err != nil {
		t.Errorf("Expected development fallback to succeed, got %v", err)
	}
}
