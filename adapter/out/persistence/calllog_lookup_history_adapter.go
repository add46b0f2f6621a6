package persistence

import (
	"context"

	"github.com/jmoiron/sqlx"

	"calllog_server/core/domain"
	"calllog_server/pkg/apperr"
	"calllog_server/pkg/logger"
)

// =============================================================================
// PhoneLookupHistoryAdapter - 번호별 조회 결과 이력
// =============================================================================

type PhoneLookupHistoryAdapter struct {
	db *sqlx.DB
}

func NewPhoneLookupHistoryAdapter(db *sqlx.DB) *PhoneLookupHistoryAdapter {
	return &PhoneLookupHistoryAdapter{db: db}
}

type lookupHistoryEntity struct {
	Number     string `db:"normalized_number"`
	LookupInfo string `db:"lookup_info"`
	UpdatedAt  int64  `db:"updated_at"`
}

// Get returns stored info for the given numbers. Unknown numbers are absent
// from the result; corrupt entries are skipped.
func (a *PhoneLookupHistoryAdapter) Get(ctx context.Context, numbers []string) (map[string]domain.LookupInfo, error) {
	rows, err := selectIn[lookupHistoryEntity](ctx, a.db,
		`SELECT normalized_number, lookup_info, updated_at FROM phone_lookup_history WHERE normalized_number IN (?)`, numbers)
	if err != nil {
		return nil, apperr.Transient("read lookup history", err)
	}

	out := make(map[string]domain.LookupInfo, len(rows))
	for _, r := range rows {
		info, err := domain.UnmarshalLookupInfo(r.LookupInfo)
		if err != nil {
			logger.Warn("[PhoneLookupHistory] corrupt entry for %s: %v", r.Number, err)
			continue
		}
		out[r.Number] = info
	}
	return out, nil
}

func (a *PhoneLookupHistoryAdapter) Upsert(ctx context.Context, entries map[string]domain.LookupInfo, updatedAt int64) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin history upsert", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`INSERT INTO phone_lookup_history (normalized_number, lookup_info, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (normalized_number) DO UPDATE SET lookup_info = excluded.lookup_info, updated_at = excluded.updated_at`)

	for number, info := range entries {
		data, err := domain.MarshalLookupInfo(info)
		if err != nil {
			return apperr.Internal("encode lookup info").WithError(err)
		}
		if _, err := tx.ExecContext(ctx, query, number, data, updatedAt); err != nil {
			return apperr.DatabaseError("history upsert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit history upsert", err)
	}
	return nil
}

func (a *PhoneLookupHistoryAdapter) Numbers(ctx context.Context) ([]string, error) {
	var numbers []string
	if err := a.db.SelectContext(ctx, &numbers, `SELECT normalized_number FROM phone_lookup_history ORDER BY normalized_number`); err != nil {
		return nil, apperr.Transient("list lookup history", err)
	}
	return numbers, nil
}

func (a *PhoneLookupHistoryAdapter) Delete(ctx context.Context, numbers []string) error {
	if err := execIn(ctx, a.db, `DELETE FROM phone_lookup_history WHERE normalized_number IN (?)`, numbers); err != nil {
		return apperr.DatabaseError("history delete", err)
	}
	return nil
}
