package out

import (
	"context"

	"calllog_server/core/domain"
)

// DataSource contributes columns to the annotated call log.
//
// IsDirty must be a pure read. Fill must be idempotent with respect to
// mutations already present in the set and must not assume ownership of ids
// it did not create. OnSuccessfulFill persists the source's own watermark and
// is only called after the set has been applied.
type DataSource interface {
	Name() string
	IsDirty(ctx context.Context) (bool, error)
	Fill(ctx context.Context, mutations *domain.MutationSet) error
	OnSuccessfulFill(ctx context.Context) error

	// Coalesce reduces newest-first rows of one group to this source's
	// contribution to the coalesced row.
	Coalesce(rows []domain.Fields) domain.Fields
}

// LookupProvider is one pluggable source of phone number identity.
// Each provider writes only its own LookupInfo sub-record.
type LookupProvider interface {
	Source() domain.LookupSource
	Lookup(ctx context.Context, number domain.DialerPhoneNumber) (domain.LookupInfo, error)
	IsDirty(ctx context.Context, numbers []domain.DialerPhoneNumber, since int64) (bool, error)

	// BulkUpdate returns info for exactly the keys of existing (normalized
	// numbers).
	BulkUpdate(ctx context.Context, existing map[string]domain.LookupInfo, since int64) (map[string]domain.LookupInfo, error)
	OnSuccessfulBulkUpdate(ctx context.Context) error
}
