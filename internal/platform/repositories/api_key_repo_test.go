package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestAPIKeyList_UsageCounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewAPIKeyRepository(db)

	rows := sqlmock.NewRows([]string{"id", "key_name", "''", "key_prefix", "is_active", "expires_at", "last_used_at", "created_at", "updated_at", "usage_count"}).
		AddRow("key_1", "partner-a", "", "ab12cd34...", true, nil, int64(1700000000), int64(1690000000), int64(1690000000), int64(42)).
		AddRow("key_2", "partner-b", "", "ef56ab78...", false, int64(1800000000), nil, int64(1680000000), int64(1695000000), int64(0))

	mock.ExpectQuery("SELECT (.+) FROM api_keys").WillReturnRows(rows)

	keys, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Expected 2 keys, got %d", len(keys))
	}

	if keys[0].UsageCount != 42 {
		t.Errorf("Expected usage count 42, got %d", keys[0].UsageCount)
	}
	if keys[0].KeyHash != "" {
		t.Error("Admin listing must not expose key hashes")
	}
	if keys[0].LastUsedAt == nil || *keys[0].LastUsedAt != 1700000000 {
		t.Errorf("Unexpected last_used_at: %v", keys[0].LastUsedAt)
	}
	if keys[1].ExpiresAt == nil || *keys[1].ExpiresAt != 1800000000 {
		t.Errorf("Unexpected expires_at: %v", keys[1].ExpiresAt)
	}
	if keys[1].IsActive {
		t.Error("Expected second key to be inactive")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestAPIKeyList_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM api_keys").WillReturnError(errors.New("disk I/O error"))

	if _, err := NewAPIKeyRepository(db).List(context.Background()); err == nil {
		t.Fatal("Expected query error to propagate")
	}
}

func TestAPIKeySetActive_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE api_keys SET is_active").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewAPIKeyRepository(db).SetActive(context.Background(), "key_missing", false)
	if !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("Expected ErrAPIKeyNotFound, got %v", err)
	}
}
