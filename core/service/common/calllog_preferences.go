package common

import (
	"context"
	"strconv"

	"calllog_server/core/port/out"
	"calllog_server/pkg/apperr"
)

// Watermark and flag keys.
const (
	KeyForceRebuild           = "calllog.force_rebuild"
	KeySystemLastTimestamp    = "calllog.system.last_timestamp_processed"
	KeySystemLastID           = "calllog.system.last_id_processed"
	KeyPhoneLookupLastUpdated = "calllog.phone_lookup.last_timestamp_processed"
	KeyVoicemailLastModified  = "calllog.voicemail.last_timestamp_processed"
	KeySpamLastVersion        = "calllog.spam.last_version_processed"
)

// Preferences is a typed view over a KeyValueStore.
type Preferences struct {
	store out.KeyValueStore
}

func NewPreferences(store out.KeyValueStore) *Preferences {
	return &Preferences{store: store}
}

// GetInt64 returns the stored value and whether it was present.
func (p *Preferences) GetInt64(ctx context.Context, key string) (int64, bool, error) {
	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		return 0, false, apperr.Transient("read "+key, err)
	}
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// a corrupt value reads as absent so the next refresh rebuilds it
		return 0, false, nil
	}
	return v, true, nil
}

func (p *Preferences) PutInt64(ctx context.Context, key string, value int64) error {
	if err := p.store.Put(ctx, key, strconv.FormatInt(value, 10)); err != nil {
		return apperr.Transient("write "+key, err)
	}
	return nil
}

// GetBool returns false for absent keys.
func (p *Preferences) GetBool(ctx context.Context, key string) (bool, error) {
	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		return false, apperr.Transient("read "+key, err)
	}
	if !ok {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, nil
	}
	return v, nil
}

func (p *Preferences) PutBool(ctx context.Context, key string, value bool) error {
	if err := p.store.Put(ctx, key, strconv.FormatBool(value)); err != nil {
		return apperr.Transient("write "+key, err)
	}
	return nil
}
