package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	apiContext "membercheck/internal/api/context"
	"membercheck/internal/engine/apikeys"
	"membercheck/internal/pkg/errors"
	"membercheck/internal/platform/audit"
	"membercheck/internal/platform/auth"
	"membercheck/internal/platform/models"
	"membercheck/internal/platform/repositories"
)

type APIKeyHandler struct {
	keys     *apikeys.Service
	repo     *repositories.APIKeyRepository
	auditLog *audit.Logger
}

func NewAPIKeyHandler(keys *apikeys.Service, repo *repositories.APIKeyRepository, auditLog *audit.Logger) *APIKeyHandler {
	return &APIKeyHandler{keys: keys, repo: repo, auditLog: auditLog}
}

type CreateKeyRequest struct {
	Name      string `json:"name"`
	ExpiresAt *int64 `json:"expires_at,omitempty"` // unix seconds
}

// CreateKeyResponse carries the raw secret. It appears here once and is
// never retrievable afterwards.
type CreateKeyResponse struct {
	Key    *models.APIKey `json:"key"`
	Secret string         `json:"secret"`
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Key name is required", nil)
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		t := time.Unix(*req.ExpiresAt, 0)
		if t.Before(time.Now()) {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Expiry must be in the future", nil)
			return
		}
		expiresAt = &t
	}

	key, secret, err := h.keys.Generate(r.Context(), req.Name, expiresAt, h.actorName(r))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create API key", nil)
		return
	}

	h.record(r, "key_created", key.ID, map[string]interface{}{"key_name": key.Name})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateKeyResponse{Key: key, Secret: secret})
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.repo.List(r.Context())
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"keys": keys})
}

func (h *APIKeyHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true, "key_activated")
}

func (h *APIKeyHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false, "key_deactivated")
}

func (h *APIKeyHandler) setActive(w http.ResponseWriter, r *http.Request, active bool, action string) {
	keyID := keyIDFromRequest(r)
	if err := h.repo.SetActive(r.Context(), keyID, active); err != nil {
		if err == repositories.ErrAPIKeyNotFound {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "API key not found", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	h.record(r, action, keyID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	keyID := keyIDFromRequest(r)
	if err := h.repo.Delete(r.Context(), keyID); err != nil {
		if err == repositories.ErrAPIKeyNotFound {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "API key not found", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	h.record(r, "key_deleted", keyID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIKeyHandler) actorName(r *http.Request) string {
	if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok {
		return claims.Username
	}
	return "admin"
}

func (h *APIKeyHandler) record(r *http.Request, action, keyID string, details map[string]interface{}) {
	clientIP, userAgent := audit.ClientInfo(r)
	h.auditLog.Record(r.Context(), audit.Entry{
		ActorType: "admin",
		ActorName: h.actorName(r),
		Action:    action,
		Details:   details,
		IPAddress: clientIP,
		UserAgent: userAgent,
		APIKeyID:  keyID,
	})
}

func keyIDFromRequest(r *http.Request) string {
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return params.ByName("key_id")
}
