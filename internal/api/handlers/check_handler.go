package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"membercheck/internal/engine/apikeys"
	"membercheck/internal/engine/emailcrypto"
	"membercheck/internal/engine/ratelimit"
	"membercheck/internal/pkg/validator"
	"membercheck/internal/platform/audit"
	"membercheck/internal/platform/models"
	"membercheck/internal/platform/repositories"
)

const (
	maxCheckBodySize = 1 << 20
	checkTimeout     = 10 * time.Second
)

// checkResponse is the fixed wire shape of the public lookup endpoint.
// Every outcome, including errors, carries all four fields so integrators
// can parse one structure.
type checkResponse struct {
	Found            bool    `json:"found"`
	MMCepi           bool    `json:"mm_cepi"`
	OrganisationID   *int64  `json:"organisation_id"`
	OrganisationName *string `json:"organisation_name"`
	Error            string  `json:"error,omitempty"`
}

// CheckHandler orchestrates the public member lookup: credential validation,
// rate limiting, input validation, hash lookup, response. Every terminal
// state writes exactly one activity-log entry; audit failures never surface
// to the caller.
type CheckHandler struct {
	keys     *apikeys.Service
	limiter  *ratelimit.Limiter
	crypto   *emailcrypto.Crypto
	members  *repositories.MemberRepository
	auditLog *audit.Logger
}

func NewCheckHandler(keys *apikeys.Service, limiter *ratelimit.Limiter, crypto *emailcrypto.Crypto, members *repositories.MemberRepository, auditLog *audit.Logger) *CheckHandler {
	return &CheckHandler{keys: keys, limiter: limiter, crypto: crypto, members: members, auditLog: auditLog}
}

func (h *CheckHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	clientIP, userAgent := audit.ClientInfo(r)

	var body []byte
	if r.Method == http.MethodPost {
		body, _ = io.ReadAll(io.LimitReader(r.Body, maxCheckBodySize))
	}

	// Credential first: an unauthenticated caller learns nothing about the
	// rate-limit state.
	key, err := h.keys.Validate(ctx, apikeys.FromRequest(r, body))
	if err != nil {
		if errors.Is(err, apikeys.ErrInvalidKey) {
			h.audit(ctx, nil, "", nil, map[string]interface{}{
				"success": false,
				"reason":  "invalid_api_key",
			}, clientIP, userAgent)
			writeCheck(w, http.StatusUnauthorized, checkResponse{Error: "Valid API key required"})
			return
		}
		log.Error().Err(err).Msg("check-member: api key validation failed")
		h.audit(ctx, nil, "", nil, map[string]interface{}{
			"success": false,
			"error":   "database_error",
		}, clientIP, userAgent)
		writeCheck(w, http.StatusInternalServerError, checkResponse{Error: "Server error"})
		return
	}

	limit, err := h.limiter.Check(ctx, clientIP)
	if err != nil {
		// Fail open: an unavailable limiter store should degrade to
		// unlimited service, not an outage. The limiter still supplies
		// full-window values for the headers below.
		log.Warn().Err(err).Str("client_ip", clientIP).Msg("check-member: rate limit check failed")
	}
	writeRateHeaders(w, limit)
	if !limit.Allowed {
		h.audit(ctx, key, "", nil, map[string]interface{}{
			"success": false,
			"reason":  "rate_limited",
			"limit":   limit.LimitType,
		}, clientIP, userAgent)
		w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(limit.ResetAt).Seconds())+1, 10))
		writeCheck(w, http.StatusTooManyRequests, checkResponse{Error: "Rate limit exceeded"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.audit(ctx, key, "", nil, map[string]interface{}{
			"success": false,
			"reason":  "method_not_allowed",
			"method":  r.Method,
		}, clientIP, userAgent)
		writeCheck(w, http.StatusMethodNotAllowed, checkResponse{Error: "Method not allowed. Use GET or POST."})
		return
	}

	email, errMsg := extractEmail(r, body)
	if errMsg == "" {
		email = validator.NormalizeEmail(email)
		if err := validator.ValidateEmail(email); err != nil {
			errMsg = "Invalid email address"
			if errors.Is(err, validator.ErrEmailRequired) {
				errMsg = "Email address is required"
			}
		}
	}
	if errMsg != "" {
		h.audit(ctx, key, email, nil, map[string]interface{}{
			"success": false,
			"reason":  "invalid_email",
		}, clientIP, userAgent)
		writeCheck(w, http.StatusBadRequest, checkResponse{Error: errMsg})
		return
	}

	match, err := h.members.FindActiveByLookupHash(ctx, h.crypto.LookupHash(email))
	switch {
	case err == nil:
		h.audit(ctx, key, email, &match.OrganisationID, map[string]interface{}{
			"success": true,
			"found":   true,
			"mm_cepi": match.MMCepi,
		}, clientIP, userAgent)
		writeCheck(w, http.StatusOK, checkResponse{
			Found:            true,
			MMCepi:           match.MMCepi,
			OrganisationID:   &match.OrganisationID,
			OrganisationName: &match.OrganisationName,
		})
	case errors.Is(err, repositories.ErrMemberNotFound):
		h.audit(ctx, key, email, nil, map[string]interface{}{
			"success": true,
			"found":   false,
		}, clientIP, userAgent)
		writeCheck(w, http.StatusOK, checkResponse{})
	default:
		log.Error().Err(err).Msg("check-member: lookup failed")
		h.audit(ctx, key, email, nil, map[string]interface{}{
			"success": false,
			"error":   "database_error",
		}, clientIP, userAgent)
		writeCheck(w, http.StatusInternalServerError, checkResponse{Error: "Server error"})
	}
}

func extractEmail(r *http.Request, body []byte) (email, errMsg string) {
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("email"), ""
	}

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		var payload struct {
			Email string `json:"email"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", "Invalid JSON format."
		}
		return payload.Email, ""
	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return "", "Invalid form data."
		}
		return values.Get("email"), ""
	default:
		return "", "Invalid content type. Use application/json or form encoding for POST requests."
	}
}

func (h *CheckHandler) audit(ctx context.Context, key *models.APIKey, email string, orgID *int64, details map[string]interface{}, clientIP, userAgent string) {
	if email != "" {
		details["email"] = email
	}
	entry := audit.Entry{
		ActorType: "organisation",
		ActorID:   orgID,
		ActorName: "api",
		Action:    "api_call",
		Details:   details,
		IPAddress: clientIP,
		UserAgent: userAgent,
	}
	if key != nil {
		entry.APIKeyID = key.ID
		details["api_key_name"] = key.Name
	}
	h.auditLog.Record(ctx, entry)
}

func writeCheck(w http.ResponseWriter, status int, resp checkResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeRateHeaders(w http.ResponseWriter, res ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
