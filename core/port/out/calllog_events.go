package out

import (
	"context"

	"calllog_server/core/domain"
)

// EventPublisher emits call log control events for the worker.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.CallLogEvent) error
}
