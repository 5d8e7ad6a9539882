package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"membercheck/internal/pkg/errors"
	"membercheck/internal/platform/repositories"
)

type MemberHandler struct {
	members *repositories.MemberRepository
	orgs    *repositories.OrganisationRepository
}

func NewMemberHandler(members *repositories.MemberRepository, orgs *repositories.OrganisationRepository) *MemberHandler {
	return &MemberHandler{members: members, orgs: orgs}
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromRequest(w, r)
	if !ok {
		return
	}

	activeOnly := r.URL.Query().Get("include_inactive") != "true"
	members, err := h.members.ListByOrganisation(r.Context(), orgID, activeOnly)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"organisation_id": orgID,
		"count":           len(members),
		"members":         members,
	})
}

// Export streams the organisation's active members as CSV, in the same
// column layout the importer accepts, so an export can be re-imported.
func (h *MemberHandler) Export(w http.ResponseWriter, r *http.Request) {
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

	members, err := h.members.ListByOrganisation(r.Context(), orgID, true)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	filename := fmt.Sprintf("members-%d-%s.csv", org.ID, time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"email", "mm_cepi"})
	for _, m := range members {
		if err := cw.Write([]string{m.Email, strconv.FormatBool(m.MMCepi)}); err != nil {
			log.Error().Err(err).Int64("organisation_id", orgID).Msg("member export write failed")
			return
		}
	}
	cw.Flush()
}
