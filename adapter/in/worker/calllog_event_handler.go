package worker

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"calllog_server/core/domain"
	"calllog_server/core/port/in"
	"calllog_server/pkg/logger"
)

// EventHandler dispatches call log stream events. An error leaves the entry
// pending so the consumer retries it.
type EventHandler struct {
	refresh  in.RefreshService
	enricher in.EnrichmentService
}

func NewEventHandler(refresh in.RefreshService, enricher in.EnrichmentService) *EventHandler {
	return &EventHandler{refresh: refresh, enricher: enricher}
}

func (h *EventHandler) Handle(ctx context.Context, stream string, data []byte) error {
	var event domain.CallLogEvent
	if err := json.Unmarshal(data, &event); err != nil {
		// 잘못된 메시지는 재시도해도 소용없음
		logger.Warn("[EventHandler] Dropping malformed event on %s: %v", stream, err)
		return nil
	}

	logger.Debug("[EventHandler] Processing %s event %s", event.Type, event.ID)

	switch event.Type {
	case domain.EventRefresh:
		return h.refresh.Refresh(ctx, event.Force)

	case domain.EventForceRebuild:
		if err := h.refresh.MarkForceRebuild(ctx); err != nil {
			return fmt.Errorf("mark force rebuild: %w", err)
		}
		return h.refresh.RefreshWithDirtyCheck(ctx)

	case domain.EventInvalidateCache:
		if h.enricher == nil {
			return nil
		}
		return h.enricher.ClearCache(ctx)

	default:
		logger.Warn("[EventHandler] Unknown event type: %s", event.Type)
		return nil
	}
}
