package database

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"membercheck/internal/platform/config"
)

// Open connects to the sqlite database at the configured path. Foreign keys
// are enabled so deleting an organisation cascades to its members.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}
