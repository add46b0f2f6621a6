package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"calllog_server/core/domain"
	"calllog_server/pkg/apperr"
)

// =============================================================================
// AnnotatedCallLogAdapter - 주석된 통화 기록 저장소
// =============================================================================

// AnnotatedCallLogAdapter reads the annotated call log and applies mutation
// sets to it in one transaction.
type AnnotatedCallLogAdapter struct {
	db      *sqlx.DB
	columns []string
}

func NewAnnotatedCallLogAdapter(db *sqlx.DB) *AnnotatedCallLogAdapter {
	return &AnnotatedCallLogAdapter{
		db:      db,
		columns: domain.AnnotatedColumns(),
	}
}

// =============================================================================
// Apply
// =============================================================================

// Apply commits inserts, updates and deletes atomically. Inserts are full-row
// upserts: columns missing from the insert are reset to their defaults.
func (a *AnnotatedCallLogAdapter) Apply(ctx context.Context, m *domain.MutationSet) error {
	if m == nil || m.IsEmpty() {
		return nil
	}
	if err := validateColumns(m); err != nil {
		return err
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin apply", err)
	}
	defer tx.Rollback()

	if err := a.applyInserts(ctx, tx, m); err != nil {
		return apperr.DatabaseError("apply inserts", err)
	}
	if err := a.applyUpdates(ctx, tx, m); err != nil {
		return apperr.DatabaseError("apply updates", err)
	}
	if err := execIn(ctx, tx, `DELETE FROM annotated_call_log WHERE id IN (?)`, m.Deletes()); err != nil {
		return apperr.DatabaseError("apply deletes", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit apply", err)
	}
	return nil
}

func (a *AnnotatedCallLogAdapter) applyInserts(ctx context.Context, tx *sqlx.Tx, m *domain.MutationSet) error {
	ids := m.Inserts()
	if len(ids) == 0 {
		return nil
	}

	quoted := make([]string, len(a.columns))
	sets := make([]string, len(a.columns))
	for i, col := range a.columns {
		quoted[i] = quoteIdent(col)
		sets[i] = fmt.Sprintf("%s = excluded.%s", quoted[i], quoted[i])
	}
	query := tx.Rebind(fmt.Sprintf(
		`INSERT INTO annotated_call_log (id, %s) VALUES (?%s) ON CONFLICT (id) DO UPDATE SET %s`,
		strings.Join(quoted, ", "),
		strings.Repeat(", ?", len(a.columns)),
		strings.Join(sets, ", "),
	))

	for _, id := range ids {
		fields, _ := m.InsertFields(id)
		args := make([]any, 0, len(a.columns)+1)
		args = append(args, id)
		for _, col := range a.columns {
			args = append(args, columnValue(fields, col))
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert id %d: %w", id, err)
		}
	}
	return nil
}

func (a *AnnotatedCallLogAdapter) applyUpdates(ctx context.Context, tx *sqlx.Tx, m *domain.MutationSet) error {
	for _, id := range m.Updates() {
		fields, _ := m.UpdateFields(id)
		if len(fields) == 0 {
			continue
		}

		cols := fields.Keys()
		sets := make([]string, len(cols))
		args := make([]any, 0, len(cols)+1)
		for i, col := range cols {
			sets[i] = quoteIdent(col) + " = ?"
			args = append(args, columnValue(fields, col))
		}
		args = append(args, id)

		query := tx.Rebind(fmt.Sprintf(`UPDATE annotated_call_log SET %s WHERE id = ?`, strings.Join(sets, ", ")))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update id %d: %w", id, err)
		}
	}
	return nil
}

// validateColumns rejects unknown columns before any write happens.
func validateColumns(m *domain.MutationSet) error {
	check := func(id int64, fields domain.Fields) error {
		for col := range fields {
			if _, ok := domain.ColumnKindOf(col); !ok {
				return apperr.ContractViolation("annotated_call_log",
					fmt.Sprintf("id %d: %v %q", id, ErrUnknownColumn, col))
			}
		}
		return nil
	}
	for _, id := range m.Inserts() {
		f, _ := m.InsertFields(id)
		if err := check(id, f); err != nil {
			return err
		}
	}
	for _, id := range m.Updates() {
		f, _ := m.UpdateFields(id)
		if err := check(id, f); err != nil {
			return err
		}
	}
	return nil
}

// columnValue coerces a field to the column's storage kind. Bools are stored
// as 0/1.
func columnValue(fields domain.Fields, col string) any {
	kind, _ := domain.ColumnKindOf(col)
	switch kind {
	case domain.KindBool:
		return boolToInt(fields.Bool(col))
	case domain.KindInt:
		return fields.Int64(col)
	default:
		return fields.String(col)
	}
}

// =============================================================================
// Reader
// =============================================================================

func (a *AnnotatedCallLogAdapter) AllIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := a.db.SelectContext(ctx, &ids, `SELECT id FROM annotated_call_log ORDER BY id`); err != nil {
		return nil, apperr.DatabaseError("annotated ids", err)
	}
	return ids, nil
}

func (a *AnnotatedCallLogAdapter) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM annotated_call_log`); err != nil {
		return 0, apperr.DatabaseError("annotated count", err)
	}
	return n, nil
}

func (a *AnnotatedCallLogAdapter) LookupStates(ctx context.Context) ([]domain.RowLookupState, error) {
	var states []domain.RowLookupState
	err := a.db.SelectContext(ctx, &states,
		`SELECT id, normalized_number, lookup_info, lookup_complete FROM annotated_call_log
		WHERE normalized_number <> '' ORDER BY id`)
	if err != nil {
		return nil, apperr.DatabaseError("annotated lookup states", err)
	}
	return states, nil
}

func (a *AnnotatedCallLogAdapter) DistinctNumbers(ctx context.Context) ([]string, error) {
	var numbers []string
	err := a.db.SelectContext(ctx, &numbers,
		`SELECT DISTINCT normalized_number FROM annotated_call_log WHERE normalized_number <> '' ORDER BY normalized_number`)
	if err != nil {
		return nil, apperr.DatabaseError("annotated numbers", err)
	}
	return numbers, nil
}

func (a *AnnotatedCallLogAdapter) ListRows(ctx context.Context, limit int) ([]domain.AnnotatedRow, error) {
	quoted := make([]string, len(a.columns))
	for i, col := range a.columns {
		quoted[i] = quoteIdent(col)
	}
	query := fmt.Sprintf(`SELECT id, %s FROM annotated_call_log ORDER BY timestamp DESC, id DESC`, strings.Join(quoted, ", "))

	var rows []domain.AnnotatedRow
	var err error
	if limit > 0 {
		err = a.db.SelectContext(ctx, &rows, a.db.Rebind(query+` LIMIT ?`), limit)
	} else {
		err = a.db.SelectContext(ctx, &rows, query)
	}
	if err != nil {
		return nil, apperr.DatabaseError("list annotated rows", err)
	}
	return rows, nil
}
