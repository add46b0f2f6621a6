package rediskv

import (
	"context"
	"strconv"

	"calllog_server/core/domain"
	"calllog_server/pkg/apperr"
	"calllog_server/pkg/cache"
)

const (
	spamSetKey     = "spam:numbers"
	blockedSetKey  = "blocked:numbers"
	spamVersionKey = "spam:version"
)

// SpamSignalsAdapter keeps the spam list and the blocklist as Redis sets.
// Every change bumps a version counter so the spam data source can tell
// that re-evaluation is needed.
type SpamSignalsAdapter struct {
	cache *cache.RedisCache
}

func NewSpamSignalsAdapter(c *cache.RedisCache) *SpamSignalsAdapter {
	return &SpamSignalsAdapter{cache: c}
}

func (a *SpamSignalsAdapter) Version(ctx context.Context) (int64, error) {
	raw, ok, err := a.cache.Get(ctx, spamVersionKey)
	if err != nil {
		return 0, apperr.Transient("spam version", err)
	}
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Transient("spam version", err)
	}
	return v, nil
}

func (a *SpamSignalsAdapter) Evaluate(ctx context.Context, numbers []string) (map[string]domain.SpamStatus, error) {
	out := make(map[string]domain.SpamStatus, len(numbers))
	if len(numbers) == 0 {
		return out, nil
	}

	spam, err := a.cache.SetMembers(ctx, spamSetKey, numbers)
	if err != nil {
		return nil, apperr.Transient("spam lookup", err)
	}
	blocked, err := a.cache.SetMembers(ctx, blockedSetKey, numbers)
	if err != nil {
		return nil, apperr.Transient("blocklist lookup", err)
	}

	for _, n := range numbers {
		out[n] = domain.SpamStatus{IsSpam: spam[n], IsBlocked: blocked[n]}
	}
	return out, nil
}

// MarkSpam adds or removes numbers from the spam list.
func (a *SpamSignalsAdapter) MarkSpam(ctx context.Context, spam bool, numbers ...string) error {
	return a.change(ctx, spamSetKey, spam, numbers)
}

// Block adds or removes numbers from the blocklist.
func (a *SpamSignalsAdapter) Block(ctx context.Context, blocked bool, numbers ...string) error {
	return a.change(ctx, blockedSetKey, blocked, numbers)
}

func (a *SpamSignalsAdapter) change(ctx context.Context, key string, add bool, numbers []string) error {
	if len(numbers) == 0 {
		return nil
	}

	var err error
	if add {
		err = a.cache.AddToSet(ctx, key, numbers...)
	} else {
		err = a.cache.RemoveFromSet(ctx, key, numbers...)
	}
	if err != nil {
		return apperr.ExternalError("redis", err)
	}

	if _, err := a.cache.Increment(ctx, spamVersionKey); err != nil {
		return apperr.ExternalError("redis", err)
	}
	return nil
}
