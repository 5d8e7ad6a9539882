package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apiContext "membercheck/internal/api/context"
	"membercheck/internal/engine/importer"
	"membercheck/internal/pkg/errors"
	"membercheck/internal/platform/audit"
	"membercheck/internal/platform/auth"
	"membercheck/internal/platform/repositories"
)

type ImportHandler struct {
	importSvc   *importer.Service
	orgs        *repositories.OrganisationRepository
	importLogs  *repositories.ImportLogRepository
	maxFileSize int64
}

func NewImportHandler(importSvc *importer.Service, orgs *repositories.OrganisationRepository, importLogs *repositories.ImportLogRepository, maxFileSize int64) *ImportHandler {
	return &ImportHandler{importSvc: importSvc, orgs: orgs, importLogs: importLogs, maxFileSize: maxFileSize}
}

// Upload replaces an organisation's member list with the uploaded file.
// The multipart field is named "file"; CSV and XLSX are accepted.
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromRequest(w, r)
	if !ok {
		return
	}

	if _, err := h.orgs.GetByID(r.Context(), orgID); err != nil {
		if err == repositories.ErrOrganisationNotFound {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Organisation not found", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "File too large or invalid multipart form", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Missing file field", nil)
		return
	}
	defer file.Close()

	rows, err := importer.Parse(file, header.Filename)
	if err != nil {
		if err == importer.ErrUnsupportedFormat {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unsupported file format. Upload a .csv or .xlsx file.", nil)
			return
		}
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	actorName := "admin"
	if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok {
		actorName = claims.Username
	}
	clientIP, userAgent := audit.ClientInfo(r)

	result, err := h.importSvc.Sync(r.Context(), orgID, header.Filename, rows, actorName, clientIP, userAgent)
	if err != nil {
		log.Error().Err(err).Int64("organisation_id", orgID).Str("filename", header.Filename).Msg("member import failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Import failed", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// History returns recent import log entries for an organisation.
func (h *ImportHandler) History(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromRequest(w, r)
	if !ok {
		return
	}

	logs, err := h.importLogs.ListByOrganisation(r.Context(), orgID, 50)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"imports": logs})
}
