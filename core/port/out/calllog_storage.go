package out

import (
	"context"

	"calllog_server/core/domain"
)

// =============================================================================
// Native call log (source of truth)
// =============================================================================

type SystemCallLog interface {
	// QueryModifiedSince returns up to limit rows positioned after the
	// cursor. The batch is taken in (last_modified, id) order so a capped
	// batch never skips a row; the returned slice is newest-first by timestamp.
	QueryModifiedSince(ctx context.Context, after domain.ModifiedCursor, limit int) ([]domain.SystemCallRow, error)

	// ExistingIDs returns the subset of ids still present.
	ExistingIDs(ctx context.Context, ids []int64) ([]int64, error)
	Count(ctx context.Context) (int64, error)
	HasModifiedSince(ctx context.Context, after domain.ModifiedCursor) (bool, error)
}

// =============================================================================
// Annotated call log
// =============================================================================

type AnnotatedCallLogReader interface {
	AllIDs(ctx context.Context) ([]int64, error)
	Count(ctx context.Context) (int64, error)

	// LookupStates returns the committed lookup columns of every row that
	// has a number, ordered by id.
	LookupStates(ctx context.Context) ([]domain.RowLookupState, error)
	DistinctNumbers(ctx context.Context) ([]string, error)

	// ListRows returns rows newest-first (timestamp DESC, id DESC). limit <= 0
	// returns every row.
	ListRows(ctx context.Context, limit int) ([]domain.AnnotatedRow, error)
}

// MutationApplier commits a MutationSet atomically.
type MutationApplier interface {
	Apply(ctx context.Context, mutations *domain.MutationSet) error
}

// =============================================================================
// Watermarks / flags
// =============================================================================

type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// =============================================================================
// Phone lookup history
// =============================================================================

// PhoneLookupHistory persists the last merged LookupInfo per normalized number.
type PhoneLookupHistory interface {
	Get(ctx context.Context, numbers []string) (map[string]domain.LookupInfo, error)
	Upsert(ctx context.Context, entries map[string]domain.LookupInfo, updatedAt int64) error
	Numbers(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, numbers []string) error
}
