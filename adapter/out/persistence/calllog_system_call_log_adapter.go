package persistence

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"

	"calllog_server/core/domain"
	"calllog_server/pkg/apperr"
)

// =============================================================================
// SystemCallLogAdapter - 네이티브 통화 기록
// =============================================================================

type SystemCallLogAdapter struct {
	db *sqlx.DB
}

func NewSystemCallLogAdapter(db *sqlx.DB) *SystemCallLogAdapter {
	return &SystemCallLogAdapter{db: db}
}

const systemCallColumns = `id, timestamp, last_modified, number, call_type, country_iso, duration, features,
	geocoded_location, phone_account_component, phone_account_id, is_read, "new",
	cached_name, cached_formatted_number`

const afterCursor = `(last_modified > ? OR (last_modified = ? AND id > ?))`

func (a *SystemCallLogAdapter) QueryModifiedSince(ctx context.Context, after domain.ModifiedCursor, limit int) ([]domain.SystemCallRow, error) {
	var rows []domain.SystemCallRow
	query := a.db.Rebind(`SELECT ` + systemCallColumns + ` FROM system_call_log
		WHERE ` + afterCursor + ` ORDER BY last_modified ASC, id ASC LIMIT ?`)
	err := a.db.SelectContext(ctx, &rows, query, after.LastModified, after.LastModified, after.ID, limit)
	if err != nil {
		return nil, apperr.Transient("query system call log", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Timestamp != rows[j].Timestamp {
			return rows[i].Timestamp > rows[j].Timestamp
		}
		return rows[i].ID > rows[j].ID
	})
	return rows, nil
}

func (a *SystemCallLogAdapter) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	live, err := selectIn[int64](ctx, a.db, `SELECT id FROM system_call_log WHERE id IN (?)`, ids)
	if err != nil {
		return nil, apperr.Transient("query live ids", err)
	}
	return live, nil
}

func (a *SystemCallLogAdapter) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM system_call_log`); err != nil {
		return 0, apperr.Transient("count system call log", err)
	}
	return n, nil
}

func (a *SystemCallLogAdapter) HasModifiedSince(ctx context.Context, after domain.ModifiedCursor) (bool, error) {
	var n int64
	query := a.db.Rebind(`SELECT COUNT(*) FROM (SELECT 1 FROM system_call_log WHERE ` + afterCursor + ` LIMIT 1) t`)
	if err := a.db.GetContext(ctx, &n, query, after.LastModified, after.LastModified, after.ID); err != nil {
		return false, apperr.Transient("check system call log", err)
	}
	return n > 0, nil
}

// =============================================================================
// Writes (native log simulation / ingestion)
// =============================================================================

// Upsert records a native call log row.
func (a *SystemCallLogAdapter) Upsert(ctx context.Context, r domain.SystemCallRow) error {
	query := a.db.Rebind(`INSERT INTO system_call_log (` + systemCallColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			timestamp = excluded.timestamp,
			last_modified = excluded.last_modified,
			number = excluded.number,
			call_type = excluded.call_type,
			country_iso = excluded.country_iso,
			duration = excluded.duration,
			features = excluded.features,
			geocoded_location = excluded.geocoded_location,
			phone_account_component = excluded.phone_account_component,
			phone_account_id = excluded.phone_account_id,
			is_read = excluded.is_read,
			"new" = excluded."new",
			cached_name = excluded.cached_name,
			cached_formatted_number = excluded.cached_formatted_number`)

	_, err := a.db.ExecContext(ctx, query,
		r.ID, r.Timestamp, r.LastModified, r.Number, r.CallType, r.CountryISO, r.Duration, r.Features,
		r.GeocodedLocation, r.PhoneAccountComponent, r.PhoneAccountID, boolToInt(r.IsRead), boolToInt(r.New),
		r.CachedName, r.CachedFormattedNumber,
	)
	if err != nil {
		return apperr.DatabaseError("upsert system call", err)
	}
	return nil
}

// Delete removes native call log rows.
func (a *SystemCallLogAdapter) Delete(ctx context.Context, ids []int64) error {
	if err := execIn(ctx, a.db, `DELETE FROM system_call_log WHERE id IN (?)`, ids); err != nil {
		return apperr.DatabaseError("delete system calls", err)
	}
	return nil
}
