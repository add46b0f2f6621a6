package domain

import "time"

// CallLogEventType names a control event on the call log stream.
type CallLogEventType string

const (
	EventRefresh         CallLogEventType = "refresh"
	EventForceRebuild    CallLogEventType = "force_rebuild"
	EventInvalidateCache CallLogEventType = "invalidate_cache"
)

// CallLogEvent is one message on the call log event stream.
type CallLogEvent struct {
	ID        string           `json:"id"`
	Type      CallLogEventType `json:"type"`
	Force     bool             `json:"force,omitempty"`
	Source    string           `json:"source,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
