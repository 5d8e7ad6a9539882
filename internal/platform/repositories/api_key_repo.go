package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"membercheck/internal/platform/models"
)

var ErrAPIKeyNotFound = errors.New("api key not found")

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	if key.ID == "" {
		key.ID = "key_" + uuid.New().String()
	}
	now := time.Now().Unix()
	key.CreatedAt = now
	key.UpdatedAt = now
	key.IsActive = true

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_name, key_hash, key_prefix, is_active, expires_at, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.ExpiresAt, key.CreatedBy, key.CreatedAt, key.UpdatedAt)
	return err
}

// ListActive returns every active key with its hash; validation has to
// bcrypt-compare the presented secret against each of them because the
// stored hashes are salted.
func (r *APIKeyRepository) ListActive(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, key_name, key_hash, key_prefix, is_active, expires_at, last_used_at, created_at, updated_at
		 FROM api_keys WHERE is_active = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanKeys(rows, false)
}

// List returns all keys for the admin surface, hashes omitted, usage counts
// derived from the activity log.
func (r *APIKeyRepository) List(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, key_name, '', key_prefix, is_active, expires_at, last_used_at, created_at, updated_at,
			(SELECT COUNT(*) FROM activity_logs a WHERE a.api_key_id = api_keys.id) AS usage_count
		FROM api_keys
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanKeys(rows, true)
}

func scanKeys(rows *sql.Rows, withUsage bool) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		var expiresAt, lastUsedAt sql.NullInt64

		dest := []interface{}{&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.IsActive, &expiresAt, &lastUsedAt, &k.CreatedAt, &k.UpdatedAt}
		if withUsage {
			dest = append(dest, &k.UsageCount)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Int64
		}
		if lastUsedAt.Valid {
			k.LastUsedAt = &lastUsedAt.Int64
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	var k models.APIKey
	var expiresAt, lastUsedAt sql.NullInt64
	var createdBy sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, key_name, key_prefix, is_active, expires_at, last_used_at, created_by, created_at, updated_at,
			(SELECT COUNT(*) FROM activity_logs a WHERE a.api_key_id = api_keys.id) AS usage_count
		FROM api_keys WHERE id = ?`, id).
		Scan(&k.ID, &k.Name, &k.KeyPrefix, &k.IsActive, &expiresAt, &lastUsedAt, &createdBy, &k.CreatedAt, &k.UpdatedAt, &k.UsageCount)
	if err == sql.ErrNoRows {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Int64
	}
	if lastUsedAt.Valid {
		k.LastUsedAt = &lastUsedAt.Int64
	}
	k.CreatedBy = createdBy.String
	return &k, nil
}

func (r *APIKeyRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.touch(ctx, `UPDATE api_keys SET is_active = ?, updated_at = ? WHERE id = ?`, active, time.Now().Unix(), id)
}

func (r *APIKeyRepository) Delete(ctx context.Context, id string) error {
	return r.touch(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, time.Now().Unix(), id)
	return err
}

func (r *APIKeyRepository) touch(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}
