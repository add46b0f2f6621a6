// Package messaging provides the Redis Streams transport for call log events.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"calllog_server/core/domain"
	"calllog_server/core/port/out"
)

// Stream names
const (
	StreamCallLogEvents = "calllog:events"
)

var _ out.EventPublisher = (*RedisProducer)(nil)

// RedisProducer publishes call log events to a Redis stream.
type RedisProducer struct {
	client *redis.Client
	maxLen int64
}

// NewRedisProducer creates a new RedisProducer. The stream is trimmed to
// roughly maxLen entries; 0 keeps everything.
func NewRedisProducer(client *redis.Client, maxLen int64) *RedisProducer {
	return &RedisProducer{client: client, maxLen: maxLen}
}

// Publish fills in the id and creation time when absent.
func (p *RedisProducer) Publish(ctx context.Context, event *domain.CallLogEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return p.publish(ctx, StreamCallLogEvents, event)
}

func (p *RedisProducer) publish(ctx context.Context, stream string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": string(payload)},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}
