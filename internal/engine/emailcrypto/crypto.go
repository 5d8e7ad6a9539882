// Package emailcrypto protects member email addresses at rest.
//
// Each address is stored twice: as AES-256-GCM ciphertext (reversible, for
// display and export, a fresh nonce per call so the stored form is
// non-deterministic) and as an HMAC-SHA256 lookup hash (deterministic, so
// equality lookups hit an index instead of decrypting every row). The
// plaintext is not recoverable from the lookup hash alone.
package emailcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/rs/zerolog/log"

	"membercheck/internal/pkg/validator"
)

var (
	// ErrNoSecret is returned by New when no secret is configured in
	// production. Running on the fallback key would make every deployment
	// share one key, so this is a hard startup failure.
	ErrNoSecret = errors.New("emailcrypto: no encryption secret configured")

	// ErrDecrypt covers tampered, malformed, or wrong-key ciphertext.
	ErrDecrypt = errors.New("emailcrypto: unable to decrypt")
)

const fallbackSecret = "membercheck_default_email_key_change_in_production"

type Crypto struct {
	key  []byte
	aead cipher.AEAD
}

// New derives a 256-bit key from the configured secret. An empty secret is
// rejected in production and replaced with a logged fallback in development.
func New(secret string, production bool) (*Crypto, error) {
	if secret == "" {
		if production {
			return nil, ErrNoSecret
		}
		log.Warn().Msg("emailcrypto: using built-in development key, set crypto.email_secret before going live")
		secret = fallbackSecret
	}

	key := sha256.Sum256([]byte(secret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Crypto{key: key[:], aead: aead}, nil
}

// EncryptForStorage normalizes the address and seals it with a random
// nonce. Output is base64(nonce || ciphertext || tag). Two calls on the
// same input produce different outputs.
func (c *Crypto) EncryptForStorage(email string) (string, error) {
	email = validator.NormalizeEmail(email)
	if email == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(email), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses EncryptForStorage. Any tamper, truncation, or wrong-key
// input yields ErrDecrypt rather than a panic or partial plaintext.
func (c *Crypto) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecrypt
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrDecrypt
	}

	plain, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrDecrypt
	}

	return string(plain), nil
}

// LookupHash computes the deterministic keyed hash used as the searchable
// surrogate key for an email. Case and surrounding whitespace do not affect
// the result.
func (c *Crypto) LookupHash(email string) string {
	email = validator.NormalizeEmail(email)
	if email == "" {
		return ""
	}

	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(email))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyLookup reports whether email hashes to lookupHash, in constant time.
func (c *Crypto) VerifyLookup(email, lookupHash string) bool {
	if email == "" || lookupHash == "" {
		return false
	}
	return hmac.Equal([]byte(c.LookupHash(email)), []byte(lookupHash))
}
