package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	apiContext "membercheck/internal/api/context"
	"membercheck/internal/pkg/errors"
	"membercheck/internal/platform/audit"
	"membercheck/internal/platform/auth"
	"membercheck/internal/platform/models"
	"membercheck/internal/platform/repositories"
)

type OrgHandler struct {
	orgs     *repositories.OrganisationRepository
	auditLog *audit.Logger
}

func NewOrgHandler(orgs *repositories.OrganisationRepository, auditLog *audit.Logger) *OrgHandler {
	return &OrgHandler{orgs: orgs, auditLog: auditLog}
}

type CreateOrgRequest struct {
	Name string `json:"name"`
}

// BulkCreateRequest accepts multiple organisation names in one call, one
// result per name so a partial failure is visible per entry.
type BulkCreateRequest struct {
	Names []string `json:"names"`
}

type BulkCreateResult struct {
	Name         string               `json:"name"`
	Organisation *models.Organisation `json:"organisation,omitempty"`
	Error        string               `json:"error,omitempty"`
}

func (h *OrgHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Organisation name is required", nil)
		return
	}

	org, err := h.orgs.Create(r.Context(), req.Name)
	if err != nil {
		if err == repositories.ErrOrganisationExists {
			errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Organisation already exists", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	h.recordAdmin(r, "organisation_created", map[string]interface{}{
		"organisation_id":   org.ID,
		"organisation_name": org.Name,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(org)
}

func (h *OrgHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	var req BulkCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if len(req.Names) == 0 {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "At least one organisation name is required", nil)
		return
	}

	results := make([]BulkCreateResult, 0, len(req.Names))
	created := 0
	for _, name := range req.Names {
		name = strings.TrimSpace(name)
		res := BulkCreateResult{Name: name}
		if name == "" {
			res.Error = "empty name"
			results = append(results, res)
			continue
		}

		org, err := h.orgs.Create(r.Context(), name)
		switch {
		case err == nil:
			res.Organisation = org
			created++
		case err == repositories.ErrOrganisationExists:
			res.Error = "already exists"
		default:
			res.Error = "database error"
		}
		results = append(results, res)
	}

	if created > 0 {
		h.recordAdmin(r, "organisation_created", map[string]interface{}{
			"bulk":    true,
			"created": created,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"created": created,
		"results": results,
	})
}

func (h *OrgHandler) List(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.orgs.List(r.Context())
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"organisations": orgs})
}

func (h *OrgHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromRequest(w, r)
	if !ok {
		return
	}

	org, err := h.orgs.GetByID(r.Context(), orgID)
	if err != nil {
		if err == repositories.ErrOrganisationNotFound {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Organisation not found", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(org)
}

func (h *OrgHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.orgs.Delete(r.Context(), orgID); err != nil {
		if err == repositories.ErrOrganisationNotFound {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Organisation not found", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	h.recordAdmin(r, "organisation_deleted", map[string]interface{}{
		"organisation_id": orgID,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (h *OrgHandler) recordAdmin(r *http.Request, action string, details map[string]interface{}) {
	clientIP, userAgent := audit.ClientInfo(r)
	entry := audit.Entry{
		ActorType: "admin",
		Action:    action,
		Details:   details,
		IPAddress: clientIP,
		UserAgent: userAgent,
	}
	if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok {
		entry.ActorName = claims.Username
	}
	h.auditLog.Record(r.Context(), entry)
}

// orgIDFromRequest resolves the :org_id path parameter; it writes the error
// response itself so callers can bail with a bare return.
func orgIDFromRequest(w http.ResponseWriter, r *http.Request) (int64, bool) {
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	orgID, err := strconv.ParseInt(params.ByName("org_id"), 10, 64)
	if err != nil || orgID <= 0 {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid organisation ID", nil)
		return 0, false
	}
	return orgID, true
}
