package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"calllog_server/core/domain"
	"calllog_server/pkg/apperr"
	"calllog_server/pkg/metrics"
)

// =============================================================================
// ContactsLookupAdapter - 로컬 연락처 기반 번호 조회
// =============================================================================

// ContactsLookupAdapter resolves numbers against the local contacts tables.
// Its sub-record is always complete.
type ContactsLookupAdapter struct {
	db *sqlx.DB
}

func NewContactsLookupAdapter(db *sqlx.DB) *ContactsLookupAdapter {
	return &ContactsLookupAdapter{db: db}
}

type contactMatchEntity struct {
	Number      string `db:"normalized_number"`
	ContactID   int64  `db:"id"`
	DisplayName string `db:"display_name"`
	PhotoURI    string `db:"photo_uri"`
	PhotoID     int64  `db:"photo_id"`
	LookupKey   string `db:"lookup_key"`
	Label       string `db:"label"`
}

func (e *contactMatchEntity) toDomain() *domain.ContactsInfo {
	info := &domain.ContactsInfo{
		ContactID:       e.ContactID,
		Name:            e.DisplayName,
		PhotoURI:        e.PhotoURI,
		PhotoID:         e.PhotoID,
		NumberTypeLabel: e.Label,
	}
	if e.LookupKey != "" {
		info.LookupURI = fmt.Sprintf("content://contacts/lookup/%s/%d", e.LookupKey, e.ContactID)
	}
	return info
}

func (a *ContactsLookupAdapter) Source() domain.LookupSource {
	return domain.LookupSourceContacts
}

func (a *ContactsLookupAdapter) Lookup(ctx context.Context, number domain.DialerPhoneNumber) (domain.LookupInfo, error) {
	if number.IsEmpty() {
		return domain.LookupInfo{}, nil
	}
	defer metrics.ProviderTimer("contacts", "lookup")()

	matches, err := a.match(ctx, []string{number.Key()})
	if err != nil {
		return domain.LookupInfo{}, err
	}
	return domain.LookupInfo{Contacts: matches[number.Key()]}, nil
}

// IsDirty over-reports: any contact edit or deletion after since counts.
func (a *ContactsLookupAdapter) IsDirty(ctx context.Context, numbers []domain.DialerPhoneNumber, since int64) (bool, error) {
	if len(numbers) == 0 {
		return false, nil
	}
	defer metrics.ProviderTimer("contacts", "is_dirty")()

	var n int64
	query := a.db.Rebind(`SELECT
		(SELECT COUNT(*) FROM (SELECT 1 FROM contacts WHERE updated_at > ? LIMIT 1) c) +
		(SELECT COUNT(*) FROM (SELECT 1 FROM deleted_contacts WHERE deleted_at > ? LIMIT 1) d)`)
	if err := a.db.GetContext(ctx, &n, query, since, since); err != nil {
		return false, apperr.Transient("contacts dirty check", err)
	}
	return n > 0, nil
}

// BulkUpdate re-queries every number. Numbers without a match get no contacts
// sub-record.
func (a *ContactsLookupAdapter) BulkUpdate(ctx context.Context, existing map[string]domain.LookupInfo, since int64) (map[string]domain.LookupInfo, error) {
	defer metrics.ProviderTimer("contacts", "bulk_update")()

	numbers := make([]string, 0, len(existing))
	for number := range existing {
		numbers = append(numbers, number)
	}

	matches, err := a.match(ctx, numbers)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.LookupInfo, len(existing))
	for number := range existing {
		out[number] = domain.LookupInfo{Contacts: matches[number]}
	}
	return out, nil
}

func (a *ContactsLookupAdapter) OnSuccessfulBulkUpdate(ctx context.Context) error {
	return nil
}

// match returns the lowest-id contact per number.
func (a *ContactsLookupAdapter) match(ctx context.Context, numbers []string) (map[string]*domain.ContactsInfo, error) {
	rows, err := selectIn[contactMatchEntity](ctx, a.db, `
		SELECT p.normalized_number, c.id, c.display_name, c.photo_uri, c.photo_id, c.lookup_key, p.label
		FROM contact_phones p
		JOIN contacts c ON c.id = p.contact_id
		WHERE p.normalized_number IN (?)
		ORDER BY c.id`, numbers)
	if err != nil {
		return nil, apperr.Transient("contacts lookup", err)
	}

	out := make(map[string]*domain.ContactsInfo, len(rows))
	for i := range rows {
		if _, seen := out[rows[i].Number]; seen {
			continue
		}
		out[rows[i].Number] = rows[i].toDomain()
	}
	return out, nil
}

// =============================================================================
// Writes
// =============================================================================

// ContactRecord is one contact with its phone numbers (normalized → label).
type ContactRecord struct {
	ID          int64
	DisplayName string
	PhotoURI    string
	PhotoID     int64
	LookupKey   string
	UpdatedAt   int64
	Phones      map[string]string
}

// SaveContact replaces a contact and its phone numbers.
func (a *ContactsLookupAdapter) SaveContact(ctx context.Context, c ContactRecord) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin save contact", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO contacts (id, display_name, photo_uri, photo_id, lookup_key, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name, photo_uri = excluded.photo_uri,
			photo_id = excluded.photo_id, lookup_key = excluded.lookup_key, updated_at = excluded.updated_at`),
		c.ID, c.DisplayName, c.PhotoURI, c.PhotoID, c.LookupKey, c.UpdatedAt)
	if err != nil {
		return apperr.DatabaseError("save contact", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM contact_phones WHERE contact_id = ?`), c.ID); err != nil {
		return apperr.DatabaseError("clear contact phones", err)
	}
	for number, label := range c.Phones {
		_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO contact_phones (contact_id, normalized_number, label) VALUES (?, ?, ?)`),
			c.ID, number, label)
		if err != nil {
			return apperr.DatabaseError("save contact phone", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit save contact", err)
	}
	return nil
}

// DeleteContact removes a contact and records the tombstone.
func (a *ContactsLookupAdapter) DeleteContact(ctx context.Context, id, deletedAt int64) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin delete contact", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM contact_phones WHERE contact_id = ?`), id); err != nil {
		return apperr.DatabaseError("delete contact phones", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM contacts WHERE id = ?`), id); err != nil {
		return apperr.DatabaseError("delete contact", err)
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO deleted_contacts (contact_id, deleted_at) VALUES (?, ?)
		ON CONFLICT (contact_id) DO UPDATE SET deleted_at = excluded.deleted_at`), id, deletedAt)
	if err != nil {
		return apperr.DatabaseError("record deleted contact", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit delete contact", err)
	}
	return nil
}
