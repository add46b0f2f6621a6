// Package realtime resolves incomplete lookup info when rows are displayed.
package realtime

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"calllog_server/core/domain"
	"calllog_server/core/port/in"
	"calllog_server/core/port/out"
	"calllog_server/core/service/common"
	"calllog_server/core/service/lookup"
	"calllog_server/pkg/concurrent"
	"calllog_server/pkg/logger"
	"calllog_server/pkg/metrics"
)

var _ in.EnrichmentService = (*Processor)(nil)

// Lookuper resolves one number against every provider.
type Lookuper interface {
	Lookup(ctx context.Context, number domain.DialerPhoneNumber) (domain.LookupInfo, error)
}

// Config for the realtime processor.
type Config struct {
	MaxConcurrency int
	UserCountryISO string
	// WriteBack queues fetched info into the phone lookup history so the
	// next bulk refresh starts from it.
	WriteBack bool
	// LookupTimeout bounds one shared lookup. Joined callers wait on it
	// regardless of which caller started the flight.
	LookupTimeout time.Duration
}

// Processor enriches coalesced rows whose lookup info is incomplete.
//
// Cache writes and clears run on one serial queue. ClearCache bumps a
// generation; a lookup that started under an older generation never writes
// its result back.
type Processor struct {
	lookup  Lookuper
	cache   *common.LookupCache
	history out.PhoneLookupHistory
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time

	queue      *concurrent.SerialQueue
	inflight   singleflight.Group
	generation atomic.Uint64
}

func NewProcessor(lookup Lookuper, cache *common.LookupCache, history out.PhoneLookupHistory, cfg Config) *Processor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 10 * time.Second
	}
	return &Processor{
		lookup:  lookup,
		cache:   cache,
		history: history,
		cfg:     cfg,
		log:     logger.Component("realtime"),
		now:     time.Now,
		queue:   concurrent.NewSerialQueue(64),
	}
}

// Enrich returns complete rows unchanged without I/O.
func (p *Processor) Enrich(ctx context.Context, row domain.CoalescedRow) (domain.CoalescedRow, error) {
	if row.LookupComplete {
		metrics.RecordLookup("complete")
		return row, nil
	}
	number := row.NormalizedNumber()
	if number == "" {
		return row, nil
	}

	info, err := p.resolve(ctx, number)
	if err != nil {
		metrics.RecordLookup("error")
		return row, err
	}

	enriched := row.Clone()
	enriched.Fields.Merge(lookup.DisplayFields(info))
	enriched.LookupComplete = info.IsComplete()
	return enriched, nil
}

// EnrichAll enriches rows concurrently and keeps their order.
func (p *Processor) EnrichAll(ctx context.Context, rows []domain.CoalescedRow) ([]domain.CoalescedRow, error) {
	out := make([]domain.CoalescedRow, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, row := range rows {
		g.Go(func() error {
			enriched, err := p.Enrich(gctx, row)
			if err != nil {
				return fmt.Errorf("enrich row %d: %w", row.ID, err)
			}
			out[i] = enriched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearCache drops every cached lookup. Lookups already in flight will not
// repopulate the cache.
func (p *Processor) ClearCache(ctx context.Context) error {
	p.generation.Add(1)
	return p.queue.Do(ctx, func(ctx context.Context) error {
		p.cache.Clear()
		p.log.Debug().Msg("realtime lookup cache cleared")
		return nil
	})
}

// Flush waits for every queued cache and history write.
func (p *Processor) Flush(ctx context.Context) error {
	return p.queue.Do(ctx, func(ctx context.Context) error { return nil })
}

// Close drains queued writes and stops the processor.
func (p *Processor) Close() {
	p.queue.Close()
	p.cache.Close()
}

func (p *Processor) resolve(ctx context.Context, number string) (domain.LookupInfo, error) {
	if info, ok := p.cache.Get(number); ok {
		metrics.RecordLookup("hit")
		return info, nil
	}
	metrics.RecordLookup("miss")

	gen := p.generation.Load()
	key := fmt.Sprintf("%s#%d", number, gen)

	// 공유 lookup은 첫 호출자의 취소와 분리한다
	ch := p.inflight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.LookupTimeout)
		defer cancel()
		info, err := p.lookup.Lookup(fctx, domain.NewDialerPhoneNumber(number, p.cfg.UserCountryISO))
		if err != nil {
			return domain.LookupInfo{}, err
		}
		p.store(number, info, gen)
		return info, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.LookupInfo{}, res.Err
		}
		if res.Shared {
			p.log.Debug().Str("number", number).Msg("joined in-flight lookup")
		}
		return res.Val.(domain.LookupInfo), nil
	case <-ctx.Done():
		return domain.LookupInfo{}, ctx.Err()
	}
}

// store queues the cache write and the optional history write-back.
func (p *Processor) store(number string, info domain.LookupInfo, gen uint64) {
	updatedAt := p.now().UnixMilli()
	p.queue.Submit(context.Background(), func(ctx context.Context) error {
		if p.generation.Load() != gen {
			return nil
		}
		p.cache.Set(number, info)

		if !p.cfg.WriteBack || p.history == nil {
			return nil
		}
		if err := p.history.Upsert(ctx, map[string]domain.LookupInfo{number: info}, updatedAt); err != nil {
			p.log.Warn().Err(err).Str("number", number).Msg("lookup history write-back failed")
		}
		return nil
	})
}
