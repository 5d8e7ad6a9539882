// Package audit records an append-only activity trail. Recording can never
// fail a request: storage errors are logged and discarded at this boundary.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Entry struct {
	ID        string                 `json:"id"`
	ActorType string                 `json:"actor_type"` // "organisation", "admin", "api"
	ActorID   *int64                 `json:"actor_id,omitempty"`
	ActorName string                 `json:"actor_name"`
	Action    string                 `json:"action_type"` // "api_call", "upload", "key_created", ...
	Details   map[string]interface{} `json:"action_details,omitempty"`
	IPAddress string                 `json:"ip_address"`
	UserAgent string                 `json:"user_agent"`
	APIKeyID  string                 `json:"api_key_id,omitempty"`
	CreatedAt int64                  `json:"created_at"`
}

type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// Record appends one entry. Errors are swallowed by contract; the caller
// must not branch on whether auditing worked.
func (l *Logger) Record(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = "audit_" + uuid.New().String()
	}
	e.CreatedAt = time.Now().Unix()

	var details []byte
	if e.Details != nil {
		details, _ = json.Marshal(e.Details)
	}

	var apiKeyID interface{}
	if e.APIKeyID != "" {
		apiKeyID = e.APIKeyID
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, actor_type, actor_id, actor_name, action_type, action_details, ip_address, user_agent, api_key_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ActorType, e.ActorID, e.ActorName, e.Action, string(details), e.IPAddress, e.UserAgent, apiKeyID, e.CreatedAt)
	if err != nil {
		log.Error().Err(err).Str("action", e.Action).Msg("failed to write activity log entry")
	}
}

// List returns recent entries, newest first.
func (l *Logger) List(ctx context.Context, limit, offset int) ([]*Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, actor_type, actor_id, actor_name, action_type, action_details, ip_address, user_agent, api_key_id, created_at
		FROM activity_logs ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var actorID sql.NullInt64
		var details, apiKeyID sql.NullString

		if err := rows.Scan(&e.ID, &e.ActorType, &actorID, &e.ActorName, &e.Action, &details, &e.IPAddress, &e.UserAgent, &apiKeyID, &e.CreatedAt); err != nil {
			return nil, err
		}

		if actorID.Valid {
			e.ActorID = &actorID.Int64
		}
		if details.Valid && details.String != "" {
			json.Unmarshal([]byte(details.String), &e.Details)
		}
		e.APIKeyID = apiKeyID.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ClientInfo extracts the caller's IP and user agent. X-Forwarded-For is
// walked left to right for the first parseable address.
func ClientInfo(r *http.Request) (ip, userAgent string) {
	return ClientIP(r), r.UserAgent()
}

func ClientIP(r *http.Request) string {
	for _, candidate := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		candidate = strings.TrimSpace(candidate)
		if net.ParseIP(candidate) != nil {
			return candidate
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
