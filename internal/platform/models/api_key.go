package models

type APIKey struct {
	ID         string `json:"id"`
	Name       string `json:"key_name"`
	KeyHash    string `json:"-"`
	KeyPrefix  string `json:"key_prefix"`
	IsActive   bool   `json:"is_active"`
	ExpiresAt  *int64 `json:"expires_at,omitempty"`
	LastUsedAt *int64 `json:"last_used_at,omitempty"`
	CreatedBy  string `json:"created_by,omitempty"`
	UsageCount int64  `json:"usage_count"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}
