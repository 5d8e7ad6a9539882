package validator

import "testing"

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Errorf("Expected alice@example.com, got %q", got)
	}
}

func TestValidateEmail(t *testing.T) {
	long := make([]byte, 250)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{"valid", "alice@example.com", nil},
		{"valid subdomain", "a.b@mail.example.co.uk", nil},
		{"empty", "", ErrEmailRequired},
		{"no at", "aliceexample.com", ErrEmailInvalid},
		{"no domain dot", "alice@localhost", ErrEmailInvalid},
		{"spaces", "alice smith@example.com", ErrEmailInvalid},
		{"display name form", "Alice <alice@example.com>", ErrEmailInvalid},
		{"too long", string(long) + "@example.com", ErrEmailTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateEmail(tt.email); err != tt.wantErr {
				t.Errorf("ValidateEmail(%q) = %v, want %v", tt.email, err, tt.wantErr)
			}
		})
	}
}
