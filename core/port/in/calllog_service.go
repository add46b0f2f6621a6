package in

import (
	"context"

	"calllog_server/core/domain"
)

// RefreshService rebuilds the annotated call log.
type RefreshService interface {
	Refresh(ctx context.Context, forceRebuild bool) error
	RefreshAsync(ctx context.Context, forceRebuild bool) <-chan error
	RefreshWithDirtyCheck(ctx context.Context) error
	RefreshWithoutDirtyCheck(ctx context.Context) error
	MarkForceRebuild(ctx context.Context) error
	IsDirty(ctx context.Context) (bool, error)
}

// EnrichmentService resolves incomplete lookup info at display time.
type EnrichmentService interface {
	Enrich(ctx context.Context, row domain.CoalescedRow) (domain.CoalescedRow, error)
	EnrichAll(ctx context.Context, rows []domain.CoalescedRow) ([]domain.CoalescedRow, error)
	ClearCache(ctx context.Context) error
}

// CallLogQueryService serves the coalesced read model.
type CallLogQueryService interface {
	List(ctx context.Context, req *ListCallLogRequest) (*ListCallLogResponse, error)
}

type ListCallLogRequest struct {
	Limit  int  `json:"limit"`
	Enrich bool `json:"enrich"`
}

type ListCallLogResponse struct {
	Rows  []domain.CoalescedRow `json:"rows"`
	Total int                   `json:"total"`
}
