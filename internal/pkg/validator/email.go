package validator

import (
	"errors"
	"net/mail"
	"strings"
)

// MaxEmailLength matches the RFC 5321 limit the public API enforces.
const MaxEmailLength = 254

var (
	ErrEmailRequired = errors.New("email address is required")
	ErrEmailInvalid  = errors.New("invalid email address")
	ErrEmailTooLong  = errors.New("email address too long")
)

// NormalizeEmail lowercases and trims an address. Every component that
// hashes or compares emails must normalize through this one function.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the shape of an already-normalized address.
// Syntax only: no MX or deliverability checks, a member lookup must not
// depend on DNS.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrEmailInvalid
	}

	// mail.ParseAddress accepts bare local parts; require a domain with a dot.
	at := strings.LastIndex(email, "@")
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return ErrEmailInvalid
	}

	return nil
}
