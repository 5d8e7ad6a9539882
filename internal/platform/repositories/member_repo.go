package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"membercheck/internal/engine/emailcrypto"
	"membercheck/internal/platform/models"
)

var (
	ErrMemberNotFound = errors.New("member not found")

	// ErrDuplicateLookupHash means two rows share a lookup hash. The unique
	// index makes this impossible within one organisation, so hitting it
	// signals either index corruption or a cross-organisation hash
	// collision; returning an arbitrary match would attribute the member to
	// the wrong organisation.
	ErrDuplicateLookupHash = errors.New("lookup hash matches multiple members")
)

// MemberRepository is the only component that touches the encrypted-at-rest
// member representation. Everything leaving it is either decrypted plaintext
// or a field that was never sensitive.
type MemberRepository struct {
	db     *sql.DB
	crypto *emailcrypto.Crypto
}

func NewMemberRepository(db *sql.DB, crypto *emailcrypto.Crypto) *MemberRepository {
	return &MemberRepository{db: db, crypto: crypto}
}

// MemberMatch is the result of a public lookup: the organisation is
// discovered from the match, not supplied by the caller.
type MemberMatch struct {
	MemberID         int64
	OrganisationID   int64
	OrganisationName string
	MMCepi           bool
}

func (r *MemberRepository) FindActiveByLookupHash(ctx context.Context, hash string) (*MemberMatch, error) {
	query := `
		SELECT m.member_id, m.organisation_id, m.mm_cepi, o.organisation_name
		FROM members m
		JOIN organisations o ON m.organisation_id = o.organisation_id
		WHERE m.email_lookup_hash = ? AND m.is_active = 1
		LIMIT 2`

	rows, err := r.db.QueryContext(ctx, query, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*MemberMatch
	for rows.Next() {
		var m MemberMatch
		if err := rows.Scan(&m.MemberID, &m.OrganisationID, &m.MMCepi, &m.OrganisationName); err != nil {
			return nil, err
		}
		matches = append(matches, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, ErrMemberNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, ErrDuplicateLookupHash
	}
}

// ListByOrganisation returns members with emails decrypted for display or
// export. A row whose ciphertext fails to decrypt is returned with an empty
// email and logged; one corrupt row must not hide the rest of the list.
func (r *MemberRepository) ListByOrganisation(ctx context.Context, orgID int64, activeOnly bool) ([]*models.Member, error) {
	query := `
		SELECT member_id, organisation_id, email_ciphertext, email_lookup_hash, mm_cepi, is_active, created_at, updated_at
		FROM members
		WHERE organisation_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY member_id`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.OrganisationID, &m.Ciphertext, &m.LookupHash, &m.MMCepi, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}

		email, err := r.crypto.Decrypt(m.Ciphertext)
		if err != nil {
			log.Error().Err(err).Int64("member_id", m.ID).Msg("failed to decrypt member email")
		}
		m.Email = email
		members = append(members, &m)
	}
	return members, rows.Err()
}

// SnapshotByOrganisation loads the current member set (active and inactive)
// keyed by lookup hash, mapped to the mm_cepi flag. The importer diffs
// against this snapshot.
func (r *MemberRepository) SnapshotByOrganisation(ctx context.Context, orgID int64) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email_lookup_hash, mm_cepi FROM members WHERE organisation_id = ?`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := make(map[string]bool)
	for rows.Next() {
		var hash string
		var mmCepi bool
		if err := rows.Scan(&hash, &mmCepi); err != nil {
			return nil, err
		}
		snapshot[hash] = mmCepi
	}
	return snapshot, rows.Err()
}

// UpsertTx inserts or refreshes one member row inside the caller's
// transaction. Re-imported members are reactivated and their ciphertext
// replaced so the stored form tracks the latest upload.
func (r *MemberRepository) UpsertTx(ctx context.Context, tx *sql.Tx, orgID int64, ciphertext, lookupHash string, mmCepi bool) error {
	now := time.Now().Unix()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO members (organisation_id, email_ciphertext, email_lookup_hash, mm_cepi, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(organisation_id, email_lookup_hash) DO UPDATE SET
			email_ciphertext = excluded.email_ciphertext,
			mm_cepi = excluded.mm_cepi,
			is_active = 1,
			updated_at = excluded.updated_at`,
		orgID, ciphertext, lookupHash, mmCepi, now, now)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// DeleteTx removes one member row inside the caller's transaction and
// reports whether a row was actually deleted.
func (r *MemberRepository) DeleteTx(ctx context.Context, tx *sql.Tx, orgID int64, lookupHash string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM members WHERE organisation_id = ? AND email_lookup_hash = ?`, orgID, lookupHash)
	if err != nil {
		return false, fmt.Errorf("delete member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountByOrganisation counts active members; used by the organisation
// listing in the admin API.
func (r *MemberRepository) CountByOrganisation(ctx context.Context, orgID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE organisation_id = ? AND is_active = 1`, orgID).Scan(&n)
	return n, err
}
