package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"membercheck/internal/platform/models"
)

var (
	ErrOrganisationNotFound = errors.New("organisation not found")
	ErrOrganisationExists   = errors.New("organisation already exists")
)

type OrganisationRepository struct {
	db *sql.DB
}

func NewOrganisationRepository(db *sql.DB) *OrganisationRepository {
	return &OrganisationRepository{db: db}
}

func (r *OrganisationRepository) Create(ctx context.Context, name string) (*models.Organisation, error) {
	now := time.Now().Unix()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO organisations (organisation_name, created_at, updated_at) VALUES (?, ?, ?)`,
		name, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrOrganisationExists
		}
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &models.Organisation{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

func (r *OrganisationRepository) GetByID(ctx context.Context, id int64) (*models.Organisation, error) {
	var org models.Organisation
	err := r.db.QueryRowContext(ctx,
		`SELECT organisation_id, organisation_name, created_at, updated_at FROM organisations WHERE organisation_id = ?`, id).
		Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOrganisationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *OrganisationRepository) List(ctx context.Context) ([]*models.Organisation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.organisation_id, o.organisation_name, o.created_at, o.updated_at,
			(SELECT COUNT(*) FROM members m WHERE m.organisation_id = o.organisation_id AND m.is_active = 1) AS member_count
		FROM organisations o
		ORDER BY o.organisation_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []*models.Organisation
	for rows.Next() {
		var org models.Organisation
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt, &org.MemberCount); err != nil {
			return nil, err
		}
		orgs = append(orgs, &org)
	}
	return orgs, rows.Err()
}

func (r *OrganisationRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM organisations WHERE organisation_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOrganisationNotFound
	}
	return nil
}
