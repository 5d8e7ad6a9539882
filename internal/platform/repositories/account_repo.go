package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"membercheck/internal/platform/models"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, acc *models.Account) error {
	if acc.ID == "" {
		acc.ID = "acc_" + uuid.New().String()
	}
	now := time.Now().Unix()
	acc.CreatedAt = now
	acc.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, password_hash, role, organisation_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.Username, acc.PasswordHash, acc.Role, acc.OrganisationID, acc.CreatedAt, acc.UpdatedAt)
	return err
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	var acc models.Account
	var orgID sql.NullInt64

	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, organisation_id, created_at, updated_at
		FROM accounts WHERE username = ?`, username).
		Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &acc.Role, &orgID, &acc.CreatedAt, &acc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	if orgID.Valid {
		acc.OrganisationID = &orgID.Int64
	}
	return &acc, nil
}
