// Package query serves the coalesced call log.
package query

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"calllog_server/core/domain"
	"calllog_server/core/port/in"
	"calllog_server/core/port/out"
	"calllog_server/pkg/apperr"
	"calllog_server/pkg/logger"
)

var _ in.CallLogQueryService = (*Service)(nil)

// Coalescer builds display rows from committed rows.
type Coalescer interface {
	Coalesce(rows []domain.AnnotatedRow, now time.Time) []domain.CoalescedRow
}

type Service struct {
	reader    out.AnnotatedCallLogReader
	coalescer Coalescer
	enricher  in.EnrichmentService
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(reader out.AnnotatedCallLogReader, coalescer Coalescer, enricher in.EnrichmentService) *Service {
	return &Service{
		reader:    reader,
		coalescer: coalescer,
		enricher:  enricher,
		now:       time.Now,
		log:       logger.Component("calllog_query"),
	}
}

// List coalesces the whole log so groups and headers never depend on the
// page size, then cuts the first Limit rows. Enrichment failures degrade to
// the committed rows.
func (s *Service) List(ctx context.Context, req *in.ListCallLogRequest) (*in.ListCallLogResponse, error) {
	if req == nil {
		req = &in.ListCallLogRequest{}
	}
	if req.Limit < 0 {
		return nil, apperr.InvalidInput("limit", "must not be negative")
	}

	rows, err := s.reader.ListRows(ctx, 0)
	if err != nil {
		return nil, err
	}

	coalesced := s.coalescer.Coalesce(rows, s.now())
	total := len(coalesced)
	if req.Limit > 0 && req.Limit < total {
		coalesced = coalesced[:req.Limit]
	}

	if req.Enrich && s.enricher != nil {
		enriched, err := s.enricher.EnrichAll(ctx, coalesced)
		if err != nil {
			s.log.Warn().Err(err).Int("rows", len(coalesced)).Msg("realtime enrichment failed, serving committed rows")
		} else {
			coalesced = enriched
		}
	}

	return &in.ListCallLogResponse{Rows: coalesced, Total: total}, nil
}
