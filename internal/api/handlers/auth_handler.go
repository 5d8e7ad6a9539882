package handlers

import (
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"membercheck/internal/pkg/errors"
	"membercheck/internal/platform/audit"
	"membercheck/internal/platform/auth"
	"membercheck/internal/platform/models"
	"membercheck/internal/platform/repositories"
)

type AuthHandler struct {
	accounts *repositories.AccountRepository
	tokenSvc *auth.TokenService
	auditLog *audit.Logger
}

func NewAuthHandler(accounts *repositories.AccountRepository, tokenSvc *auth.TokenService, auditLog *audit.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, tokenSvc: tokenSvc, auditLog: auditLog}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string          `json:"access_token"`
	Account     *models.Account `json:"account"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	clientIP, userAgent := audit.ClientInfo(r)

	acc, err := h.accounts.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if err == repositories.ErrAccountNotFound {
			h.recordLogin(r, req.Username, false, clientIP, userAgent)
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid credentials", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
		h.recordLogin(r, req.Username, false, clientIP, userAgent)
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid credentials", nil)
		return
	}

	token, err := h.tokenSvc.GenerateAccessToken(acc.ID, acc.Username, acc.Role, acc.OrganisationID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate token", nil)
		return
	}

	h.recordLogin(r, acc.Username, true, clientIP, userAgent)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{AccessToken: token, Account: acc})
}

func (h *AuthHandler) recordLogin(r *http.Request, username string, success bool, clientIP, userAgent string) {
	h.auditLog.Record(r.Context(), audit.Entry{
		ActorType: "account",
		ActorName: username,
		Action:    "login",
		Details:   map[string]interface{}{"success": success},
		IPAddress: clientIP,
		UserAgent: userAgent,
	})
}
