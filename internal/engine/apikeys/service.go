// Package apikeys issues and validates the bearer credentials that guard
// the public lookup endpoint.
package apikeys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"membercheck/internal/platform/models"
	"membercheck/internal/platform/repositories"
)

var ErrInvalidKey = errors.New("invalid api key")

// secretBytes sets the raw entropy of a generated key: 32 bytes, hex
// encoded to 64 characters. bcrypt truncates input at 72 bytes, so the
// encoded form still hashes in full.
const secretBytes = 32

type Service struct {
	repo *repositories.APIKeyRepository
}

func NewService(repo *repositories.APIKeyRepository) *Service {
	return &Service{repo: repo}
}

// Generate creates a key and returns the record together with the raw
// secret. The secret is shown exactly once; only its bcrypt hash is stored,
// so it can never be retrieved again.
func (s *Service) Generate(ctx context.Context, name string, expiresAt *time.Time, createdBy string) (*models.APIKey, string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", err
	}
	rawKey := hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	key := &models.APIKey{
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8] + "...",
		CreatedBy: createdBy,
	}
	if expiresAt != nil {
		exp := expiresAt.Unix()
		key.ExpiresAt = &exp
	}

	if err := s.repo.Create(ctx, key); err != nil {
		return nil, "", err
	}

	return key, rawKey, nil
}

// Validate compares the presented secret against every active key. The
// hashes are salted, so there is no deterministic index to probe; the scan
// is O(active keys) with a constant-time bcrypt comparison per key. Keys
// whose expiry has passed are skipped even while flagged active.
func (s *Service) Validate(ctx context.Context, presented string) (*models.APIKey, error) {
	if presented == "" {
		return nil, ErrInvalidKey
	}

	keys, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	for _, key := range keys {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(presented)) != nil {
			continue
		}
		if key.ExpiresAt != nil && *key.ExpiresAt < now {
			continue
		}

		// Best effort: a failed timestamp update must not fail the request.
		go func(id string) {
			if err := s.repo.UpdateLastUsed(context.Background(), id); err != nil {
				log.Warn().Err(err).Str("api_key_id", id).Msg("failed to update api key last_used_at")
			}
		}(key.ID)

		return key, nil
	}

	return nil, ErrInvalidKey
}
