package models

type Organisation struct {
	ID          int64  `json:"organisation_id"`
	Name        string `json:"organisation_name"`
	MemberCount int64  `json:"member_count,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Member rows carry the email only as AES-GCM ciphertext plus a
// deterministic keyed lookup hash; the plaintext Email field is populated
// by the member repository when listing for display or export and is never
// persisted. (organisation_id, lookup hash) is unique at the database level.
type Member struct {
	ID             int64  `json:"member_id"`
	OrganisationID int64  `json:"organisation_id"`
	Email          string `json:"email_address,omitempty"`
	Ciphertext     string `json:"-"`
	LookupHash     string `json:"-"`
	MMCepi         bool   `json:"mm_cepi"`
	IsActive       bool   `json:"is_active"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

type ImportLog struct {
	ID             string `json:"id"`
	OrganisationID int64  `json:"organisation_id"`
	Filename       string `json:"filename"`
	RowsImported   int    `json:"rows_imported"`
	RowsAdded      int    `json:"rows_added"`
	RowsUpdated    int    `json:"rows_updated"`
	RowsDeleted    int    `json:"rows_deleted"`
	Status         string `json:"import_status"` // "success" or "partial"
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

type Account struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	PasswordHash   string `json:"-"`
	Role           string `json:"role"` // "admin" or "org"
	OrganisationID *int64 `json:"organisation_id,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}
