package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"membercheck/internal/platform/models"
)

type ImportLogRepository struct {
	db *sql.DB
}

func NewImportLogRepository(db *sql.DB) *ImportLogRepository {
	return &ImportLogRepository{db: db}
}

func (r *ImportLogRepository) Create(ctx context.Context, entry *models.ImportLog) error {
	if entry.ID == "" {
		entry.ID = "imp_" + uuid.New().String()
	}
	entry.CreatedAt = time.Now().Unix()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_logs (id, organisation_id, filename, rows_imported, rows_added, rows_updated, rows_deleted, import_status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.OrganisationID, entry.Filename, entry.RowsImported, entry.RowsAdded,
		entry.RowsUpdated, entry.RowsDeleted, entry.Status, entry.ErrorMessage, entry.CreatedAt)
	return err
}

func (r *ImportLogRepository) ListByOrganisation(ctx context.Context, orgID int64, limit int) ([]*models.ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organisation_id, filename, rows_imported, rows_added, rows_updated, rows_deleted, import_status, error_message, created_at
		FROM import_logs WHERE organisation_id = ? ORDER BY created_at DESC LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.ImportLog
	for rows.Next() {
		var l models.ImportLog
		var errMsg sql.NullString
		if err := rows.Scan(&l.ID, &l.OrganisationID, &l.Filename, &l.RowsImported, &l.RowsAdded,
			&l.RowsUpdated, &l.RowsDeleted, &l.Status, &errMsg, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ErrorMessage = errMsg.String
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
