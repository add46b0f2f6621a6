package out

import (
	"context"

	"calllog_server/core/domain"
)

// VoicemailStore exposes voicemail metadata keyed by call log id.
type VoicemailStore interface {
	ModifiedSince(ctx context.Context, since int64) ([]domain.Voicemail, error)
	HasModifiedSince(ctx context.Context, since int64) (bool, error)
	// ByCallIDs returns the voicemails attached to the given call ids,
	// whatever their modification time.
	ByCallIDs(ctx context.Context, ids []int64) ([]domain.Voicemail, error)
}

// SpamSignals evaluates numbers against the spam list and the blocklist.
// Version moves whenever either list changes.
type SpamSignals interface {
	Version(ctx context.Context) (int64, error)
	Evaluate(ctx context.Context, numbers []string) (map[string]domain.SpamStatus, error)
}
