package audit

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func setupAuditDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
	CREATE TABLE activity_logs (
		id TEXT PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id INTEGER,
		actor_name TEXT NOT NULL,
		action_type TEXT NOT NULL,
		action_details TEXT,
		ip_address TEXT,
		user_agent TEXT,
		api_key_id TEXT,
		created_at INTEGER NOT NULL
	)`)
	require.NoError(t, err)
	return db
}

func TestRecordAndList(t *testing.T) {
	db := setupAuditDB(t)
	logger := NewLogger(db)
	ctx := context.Background()

	orgID := int64(7)
	logger.Record(ctx, Entry{
		ActorType: "organisation",
		ActorID:   &orgID,
		ActorName: "api",
		Action:    "api_call",
		Details:   map[string]interface{}{"success": true, "found": true},
		IPAddress: "203.0.113.7",
		UserAgent: "integration-test",
		APIKeyID:  "key_abc",
	})
	logger.Record(ctx, Entry{
		ActorType: "admin",
		ActorName: "beheerder",
		Action:    "key_created",
		IPAddress: "198.51.100.2",
		UserAgent: "curl",
	})

	entries, err := logger.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var apiCall *Entry
	for _, e := range entries {
		if e.Action == "api_call" {
			apiCall = e
		}
	}
	require.NotNil(t, apiCall)
	require.NotNil(t, apiCall.ActorID)
	require.Equal(t, int64(7), *apiCall.ActorID)
	require.Equal(t, "key_abc", apiCall.APIKeyID)
	require.Equal(t, true, apiCall.Details["success"])
	require.NotEmpty(t, apiCall.ID)
}

func TestRecord_SwallowsStorageErrors(t *testing.T) {
	db := setupAuditDB(t)
	_, err := db.Exec(`DROP TABLE activity_logs`)
	require.NoError(t, err)

	// Must not panic or surface the failure.
	NewLogger(db).Record(context.Background(), Entry{
		ActorType: "admin",
		ActorName: "beheerder",
		Action:    "login",
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"direct", "", "192.0.2.10:4711", "192.0.2.10"},
		{"forwarded single", "203.0.113.5", "10.0.0.1:80", "203.0.113.5"},
		{"forwarded chain", "203.0.113.5, 10.0.0.2", "10.0.0.1:80", "203.0.113.5"},
		{"forwarded garbage falls back", "not-an-ip", "192.0.2.10:4711", "192.0.2.10"},
		{"ipv6 remote", "", "[2001:db8::1]:443", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			require.Equal(t, tt.want, ClientIP(r))
		})
	}
}
