package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"membercheck/internal/engine/apikeys"
	"membercheck/internal/engine/emailcrypto"
	"membercheck/internal/engine/ratelimit"
	"membercheck/internal/platform/audit"
	"membercheck/internal/platform/repositories"
)

const checkSchema = `
CREATE TABLE organisations (
	organisation_id INTEGER PRIMARY KEY AUTOINCREMENT,
	organisation_name TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE members (
	member_id INTEGER PRIMARY KEY AUTOINCREMENT,
	organisation_id INTEGER NOT NULL,
	email_ciphertext TEXT NOT NULL,
	email_lookup_hash TEXT NOT NULL,
	mm_cepi INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (organisation_id, email_lookup_hash)
);
CREATE TABLE api_keys (
	id TEXT PRIMARY KEY,
	key_name TEXT NOT NULL,
	key_hash TEXT NOT NULL,
	key_prefix TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	expires_at INTEGER,
	last_used_at INTEGER,
	created_by TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
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
);
`

type checkFixture struct {
	handler *CheckHandler
	db      *sql.DB
	crypto  *emailcrypto.Crypto
	rawKey  string
	orgID   int64
}

func setupCheck(t *testing.T, limits ratelimit.Limits) *checkFixture {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(checkSchema)
	require.NoError(t, err)

	crypto, err := emailcrypto.New("handler-test-secret", false)
	require.NoError(t, err)

	keySvc := apikeys.NewService(repositories.NewAPIKeyRepository(db))
	_, rawKey, err := keySvc.Generate(context.Background(), "partner", nil, "test")
	require.NoError(t, err)

	res, err := db.Exec(`INSERT INTO organisations (organisation_name, created_at, updated_at) VALUES ('Vereniging Demo', 1, 1)`)
	require.NoError(t, err)
	orgID, err := res.LastInsertId()
	require.NoError(t, err)

	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), limits)
	handler := NewCheckHandler(keySvc, limiter, crypto,
		repositories.NewMemberRepository(db, crypto), audit.NewLogger(db))

	return &checkFixture{handler: handler, db: db, crypto: crypto, rawKey: rawKey, orgID: orgID}
}

func (f *checkFixture) seedMember(t *testing.T, email string, mmCepi, active bool) {
	t.Helper()
	ct, err := f.crypto.EncryptForStorage(email)
	require.NoError(t, err)
	_, err = f.db.Exec(`
		INSERT INTO members (organisation_id, email_ciphertext, email_lookup_hash, mm_cepi, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, 1)`,
		f.orgID, ct, f.crypto.LookupHash(email), mmCepi, active)
	require.NoError(t, err)
}

func (f *checkFixture) auditCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM activity_logs`).Scan(&n))
	return n
}

func (f *checkFixture) do(method, target, contentType, body string, authorize bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:51234"
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authorize {
		req.Header.Set("Authorization", "Bearer "+f.rawKey)
	}
	rec := httptest.NewRecorder()
	f.handler.Handle(rec, req)
	return rec
}

func decodeCheck(t *testing.T, rec *httptest.ResponseRecorder) checkResponse {
	t.Helper()
	var resp checkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCheck_FoundMember(t *testing.T) {
	f := setupCheck(t, ratelimit.Limits{PerMinute: 60, PerHour: 1000})
	f.seedMember(t, "lid@vereniging.nl", true, true)

	rec := f.do(http.MethodGet, "/api/v1/check-member?email=Lid@Vereniging.nl", "", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeCheck(t, rec)
	require.True(t, resp.Found)
	require.True(t, resp.MMCepi)
	require.NotNil(t, resp.OrganisationID)
	require.Equal(t, f.orgID, *resp.OrganisationID)
	require.NotNil(t, resp.OrganisationName)
	require.Equal(t, "Vereniging Demo", *resp.OrganisationName)

	require.Equal(t, 1, f.auditCount(t))
}

func TestCheck_NotFound(t *testing.T) {
	f := setupCheck(t, ratelimit.Limits{PerMinute: 60, PerHour: 1000})
	f.seedMember(t, "lid@vereniging.nl", false, true)

	rec := f.do(http.MethodGet, "/api/v1/check-member?email=onbekend@elders.nl", "", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	// organisation_id must serialise as an explicit null, not be omitted.
	require.Contains(t, rec.Body.String(), `"organisation_id":null`)

	resp := decodeCheck(t, rec)
	require.False(t, resp.Found)
	require.False(t, resp.MMCepi)
	require.Nil(t, resp.OrganisationID)

	require.Equal(t, 1, f.auditCount(t))
}

func TestCheck_InactiveMemberNotFound(t *testing.T) {
	f := setupCheck(t, ratelimit.Limits{PerMinute: 60, PerHour: 1000})
	f.seedMember(t, "oud-lid@vereniging.nl", true, false)

	rec := f.do(http.MethodGet, "/api/v1/check-member?email=oud-lid@vereniging.nl", "", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decodeCheck(t, rec).Found)
}

func TestCheck_PostVariants(t *testing.T) {
	f := setupCheck(t, ratelimit.Limits{PerMinute: 60, PerHour: 1000})
	f.seedMember(t, "lid@vereniging.nl", false, true)

	t.Run("json body", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/v1/check-member", "application/json",
			`{"email":"lid@vereniging.nl"}`, true)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, decodeCheck(t, rec).Found)
	})

	t.Run("form body", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/v1/check-member", "application/x-www-form-urlencoded",
			"email=lid%40vereniging.nl", true)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, decodeCheck(t, rec).Found)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/v1/check-member", "application/json", `{"email":`, true)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported content type", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/v1/check-member", "text/plain", "lid@vereniging.nl", true)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCheck_AuthRequired(t *testing.T) {
	f := setupCheck(t, ratelimit.Limits{PerMinute: 60, PerHour: 1000})

	t.Run("missing key", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/v1/check-member?email=lid@vereniging.nl", "", "", false)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/check-member?email=lid@vereniging.nl", nil)
		req.RemoteAddr = "203.0.113.7:51234"
		req.Header.Set("X-API-Key", strings.Repeat("00", 32))
		rec := httptest.NewRecorder()
		f.handler.Handle(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	require.Equal(t, 2, f.auditCount(t))
}

func TestCheck_InvalidEmail(t *testing.T) {
	f := setupCheck(t, ratelimit.Limits{PerMinute: 60, PerHour: 1000})

	for _, email := range []string{"", "not-an-email", "user@localhost"} {
		rec := f.do(http.MethodGet, "/api/v1/check-member?email="+email, "", "", true)
		require.Equalf(t, http.StatusBadRequest, rec.Code, "email %q", email)
	}
	require.Equal(t, 3, f.auditCount(t))
}

func TestCheck_MethodNotAllowed(t *testing.T) {
	f := setupCheck(t, ratelimit.Limits{PerMinute: 60, PerHour: 1000})

	rec := f.do(http.MethodPut, "/api/v1/check-member?email=lid@vereniging.nl", "", "", true)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, 1, f.auditCount(t))
}

func TestCheck_RateLimited(t *testing.T) {
	f := setupCheck(t, ratelimit.Limits{PerMinute: 2, PerHour: 1000})
	f.seedMember(t, "lid@vereniging.nl", false, true)

	for i := 0; i < 2; i++ {
		rec := f.do(http.MethodGet, "/api/v1/check-member?email=lid@vereniging.nl", "", "", true)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := f.do(http.MethodGet, "/api/v1/check-member?email=lid@vereniging.nl", "", "", true)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// Two lookups plus one rejection.
	require.Equal(t, 3, f.auditCount(t))
}

type downWindowStore struct{}

func (downWindowStore) Take(ctx context.Context, clientID string, now time.Time, limits ratelimit.Limits) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("window store unreachable")
}

func TestCheck_LimiterOutageFailsOpen(t *testing.T) {
	f := setupCheck(t, ratelimit.Limits{PerMinute: 60, PerHour: 1000})
	f.seedMember(t, "lid@vereniging.nl", false, true)

	// Same database, limiter backed by an unreachable store.
	f.handler = NewCheckHandler(
		apikeys.NewService(repositories.NewAPIKeyRepository(f.db)),
		ratelimit.NewLimiter(downWindowStore{}, ratelimit.Limits{PerMinute: 60, PerHour: 1000}),
		f.crypto,
		repositories.NewMemberRepository(f.db, f.crypto),
		audit.NewLogger(f.db))

	rec := f.do(http.MethodGet, "/api/v1/check-member?email=lid@vereniging.nl", "", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeCheck(t, rec).Found)

	// Headers still accompany the response, with full-window values.
	require.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "60", rec.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestCheck_DuplicateHashFailsClosed(t *testing.T) {
	f := setupCheck(t, ratelimit.Limits{PerMinute: 60, PerHour: 1000})

	// Same address under two organisations produces two active rows for one
	// hash; the endpoint must refuse to guess which one to report.
	res, err := f.db.Exec(`INSERT INTO organisations (organisation_name, created_at, updated_at) VALUES ('Andere Vereniging', 1, 1)`)
	require.NoError(t, err)
	otherOrg, err := res.LastInsertId()
	require.NoError(t, err)

	email := "lid@vereniging.nl"
	ct, err := f.crypto.EncryptForStorage(email)
	require.NoError(t, err)
	for _, org := range []int64{f.orgID, otherOrg} {
		_, err = f.db.Exec(`
			INSERT INTO members (organisation_id, email_ciphertext, email_lookup_hash, mm_cepi, is_active, created_at, updated_at)
			VALUES (?, ?, ?, 0, 1, 1, 1)`, org, ct, f.crypto.LookupHash(email))
		require.NoError(t, err)
	}

	rec := f.do(http.MethodGet, "/api/v1/check-member?email="+email, "", "", true)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, f.auditCount(t))
}
