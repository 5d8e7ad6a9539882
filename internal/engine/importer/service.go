// Package importer reconciles an organisation's member set against an
// uploaded file. The file is authoritative: after a sync the organisation
// holds exactly the members the file lists, with everything else removed.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"membercheck/internal/engine/emailcrypto"
	"membercheck/internal/pkg/validator"
	"membercheck/internal/platform/audit"
	"membercheck/internal/platform/models"
	"membercheck/internal/platform/repositories"
)

const (
	maxLoggedErrors  = 10
	maxErrorMsgChars = 1000
)

type Service struct {
	db         *sql.DB
	members    *repositories.MemberRepository
	importLogs *repositories.ImportLogRepository
	crypto     *emailcrypto.Crypto
	auditLog   *audit.Logger

	mu       sync.Mutex
	orgLocks map[int64]*sync.Mutex
}

func NewService(db *sql.DB, members *repositories.MemberRepository, importLogs *repositories.ImportLogRepository, crypto *emailcrypto.Crypto, auditLog *audit.Logger) *Service {
	return &Service{
		db:         db,
		members:    members,
		importLogs: importLogs,
		crypto:     crypto,
		auditLog:   auditLog,
		orgLocks:   make(map[int64]*sync.Mutex),
	}
}

type Result struct {
	RowsImported int      `json:"rows_imported"`
	RowsAdded    int      `json:"rows_added"`
	RowsUpdated  int      `json:"rows_updated"`
	RowsDeleted  int      `json:"rows_deleted"`
	Errors       []string `json:"errors"`
}

type candidate struct {
	email      string
	ciphertext string
	mmCepi     bool
}

// Sync performs a full-replace reconciliation for one organisation.
//
// Row validation failures accumulate into Result.Errors and never abort the
// batch. The apply phase runs in a single transaction: either all upserts
// and deletions land or none do. Syncs for the same organisation are
// serialized so two concurrent uploads cannot interleave decisions diffed
// from the same snapshot.
func (s *Service) Sync(ctx context.Context, orgID int64, filename string, rows []RawRow, actorName string, clientIP, userAgent string) (*Result, error) {
	lock := s.orgLock(orgID)
	lock.Lock()
	defer lock.Unlock()

	result := &Result{Errors: []string{}}

	valid := s.validateRows(rows, result)

	current, err := s.members.SnapshotByOrganisation(ctx, orgID)
	if err != nil {
		s.recordOutcome(ctx, orgID, filename, result, actorName, clientIP, userAgent, err)
		return nil, fmt.Errorf("load current members: %w", err)
	}

	if err := s.apply(ctx, orgID, valid, current, result); err != nil {
		s.recordOutcome(ctx, orgID, filename, result, actorName, clientIP, userAgent, err)
		return nil, err
	}

	result.RowsImported = len(valid)
	s.recordOutcome(ctx, orgID, filename, result, actorName, clientIP, userAgent, nil)
	return result, nil
}

// validateRows builds the lookup-hash-keyed candidate map. The last
// occurrence wins when one file repeats an email; duplicates are not an
// error.
func (s *Service) validateRows(rows []RawRow, result *Result) map[string]candidate {
	valid := make(map[string]candidate, len(rows))

	for _, row := range rows {
		email := validator.NormalizeEmail(row.Email)
		if err := validator.ValidateEmail(email); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: invalid email address %q", row.Line, row.Email))
			continue
		}

		ciphertext, err := s.crypto.EncryptForStorage(email)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: could not process email", row.Line))
			log.Error().Err(err).Int("line", row.Line).Msg("import: email encryption failed")
			continue
		}

		valid[s.crypto.LookupHash(email)] = candidate{
			email:      email,
			ciphertext: ciphertext,
			mmCepi:     ParseFlag(row.Flag),
		}
	}

	return valid
}

func (s *Service) apply(ctx context.Context, orgID int64, valid map[string]candidate, current map[string]bool, result *Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync transaction: %w", err)
	}
	defer tx.Rollback()

	added, updated, deleted := 0, 0, 0

	for hash, c := range valid {
		if err := s.members.UpsertTx(ctx, tx, orgID, c.ciphertext, hash, c.mmCepi); err != nil {
			return err
		}
		if previousFlag, exists := current[hash]; exists {
			if previousFlag != c.mmCepi {
				updated++
			}
		} else {
			added++
		}
	}

	for hash := range current {
		if _, keep := valid[hash]; keep {
			continue
		}
		removed, err := s.members.DeleteTx(ctx, tx, orgID, hash)
		if err != nil {
			return err
		}
		if removed {
			deleted++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync transaction: %w", err)
	}

	result.RowsAdded = added
	result.RowsUpdated = updated
	result.RowsDeleted = deleted
	return nil
}

// recordOutcome persists the import-log row and the activity entry for
// every sync attempt, failed ones included. Neither write may surface an
// error to the uploader.
func (s *Service) recordOutcome(ctx context.Context, orgID int64, filename string, result *Result, actorName, clientIP, userAgent string, syncErr error) {
	status := "success"
	if len(result.Errors) > 0 {
		status = "partial"
	}
	if syncErr != nil {
		status = "failed"
	}

	entry := &models.ImportLog{
		OrganisationID: orgID,
		Filename:       filename,
		RowsImported:   result.RowsImported,
		RowsAdded:      result.RowsAdded,
		RowsUpdated:    result.RowsUpdated,
		RowsDeleted:    result.RowsDeleted,
		Status:         status,
		ErrorMessage:   truncateErrors(result.Errors, syncErr),
	}
	if err := s.importLogs.Create(ctx, entry); err != nil {
		log.Error().Err(err).Int64("organisation_id", orgID).Msg("failed to write import log")
	}

	details := map[string]interface{}{
		"filename":      filename,
		"rows_imported": result.RowsImported,
		"rows_added":    result.RowsAdded,
		"rows_updated":  result.RowsUpdated,
		"rows_deleted":  result.RowsDeleted,
		"success":       syncErr == nil && len(result.Errors) == 0,
	}
	if syncErr != nil {
		details["error"] = "sync_failed"
	}

	s.auditLog.Record(ctx, audit.Entry{
		ActorType: "organisation",
		ActorID:   &orgID,
		ActorName: actorName,
		Action:    "upload",
		Details:   details,
		IPAddress: clientIP,
		UserAgent: userAgent,
	})
}

func truncateErrors(rowErrors []string, syncErr error) string {
	parts := rowErrors
	if len(parts) > maxLoggedErrors {
		parts = parts[:maxLoggedErrors]
	}
	msg := strings.Join(parts, "; ")
	if syncErr != nil {
		if msg != "" {
			msg += "; "
		}
		msg += syncErr.Error()
	}
	if len(msg) > maxErrorMsgChars {
		msg = msg[:maxErrorMsgChars] + "..."
	}
	return msg
}

func (s *Service) orgLock(orgID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.orgLocks[orgID]
	if !ok {
		lock = &sync.Mutex{}
		s.orgLocks[orgID] = lock
	}
	return lock
}
