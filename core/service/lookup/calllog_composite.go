// Package lookup fans phone number lookups out to every registered provider
// and selects display attributes from the merged result.
package lookup

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"calllog_server/core/domain"
	"calllog_server/core/port/out"
	"calllog_server/pkg/apperr"
	"calllog_server/pkg/concurrent"
	"calllog_server/pkg/logger"
)

// Composite presents a priority-ordered list of providers as one provider.
// Calls run concurrently; each provider contributes only its own sub-record.
type Composite struct {
	providers      []out.LookupProvider
	maxConcurrency int
	log            zerolog.Logger
}

// NewComposite builds a composite over providers in priority order.
func NewComposite(providers []out.LookupProvider, maxConcurrency int) *Composite {
	if maxConcurrency <= 0 {
		maxConcurrency = len(providers)
	}
	return &Composite{
		providers:      providers,
		maxConcurrency: maxConcurrency,
		log:            logger.Component("composite_lookup"),
	}
}

// Providers returns the providers in priority order.
func (c *Composite) Providers() []out.LookupProvider {
	return c.providers
}

// Lookup queries every provider and merges the results. Any failure fails
// the whole lookup.
func (c *Composite) Lookup(ctx context.Context, number domain.DialerPhoneNumber) (domain.LookupInfo, error) {
	results := make([]domain.LookupInfo, len(c.providers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for i, p := range c.providers {
		g.Go(func() error {
			info, err := p.Lookup(gctx, number)
			if err != nil {
				return fmt.Errorf("%s lookup: %w", p.Source(), err)
			}
			results[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.LookupInfo{}, err
	}

	var merged domain.LookupInfo
	for i, p := range c.providers {
		merged = merged.WithSubRecord(p.Source(), results[i])
	}
	return merged, nil
}

// IsDirty resolves on the first completed provider result that is true or
// failed; the rest are cancelled.
func (c *Composite) IsDirty(ctx context.Context, numbers []domain.DialerPhoneNumber, since int64) (bool, error) {
	checks := make([]concurrent.Check, len(c.providers))
	for i, p := range c.providers {
		checks[i] = func(ctx context.Context) (bool, error) {
			dirty, err := p.IsDirty(ctx, numbers, since)
			if err != nil {
				return false, fmt.Errorf("%s dirty check: %w", p.Source(), err)
			}
			if dirty {
				c.log.Debug().Str("provider", string(p.Source())).Msg("provider reports dirty")
			}
			return dirty, nil
		}
	}
	return concurrent.AnyTrue(ctx, checks...)
}

// BulkUpdate hands existing to every provider and merges each provider's
// sub-record into the existing info. A provider returning a different key
// set is a contract violation.
func (c *Composite) BulkUpdate(ctx context.Context, existing map[string]domain.LookupInfo, since int64) (map[string]domain.LookupInfo, error) {
	results := make([]map[string]domain.LookupInfo, len(c.providers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for i, p := range c.providers {
		g.Go(func() error {
			res, err := p.BulkUpdate(gctx, existing, since)
			if err != nil {
				return fmt.Errorf("%s bulk update: %w", p.Source(), err)
			}
			if err := checkKeySet(p.Source(), existing, res); err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if apperr.IsContractViolation(err) {
			c.log.Error().Err(err).Msg("lookup provider broke the bulk update contract")
		}
		return nil, err
	}

	merged := make(map[string]domain.LookupInfo, len(existing))
	for number, info := range existing {
		for i, p := range c.providers {
			info = info.WithSubRecord(p.Source(), results[i][number])
		}
		merged[number] = info
	}
	return merged, nil
}

// OnSuccessfulBulkUpdate notifies every provider in parallel.
func (c *Composite) OnSuccessfulBulkUpdate(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for _, p := range c.providers {
		g.Go(func() error {
			if err := p.OnSuccessfulBulkUpdate(gctx); err != nil {
				return fmt.Errorf("%s commit: %w", p.Source(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func checkKeySet(src domain.LookupSource, want, got map[string]domain.LookupInfo) error {
	var missing, extra []string
	for k := range want {
		if _, ok := got[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range got {
		if _, ok := want[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}

	sort.Strings(missing)
	sort.Strings(extra)
	return apperr.ContractViolation(string(src),
		fmt.Sprintf("bulk update key set mismatch: missing %v, unexpected %v", missing, extra)).
		WithDetail("missing", missing).
		WithDetail("unexpected", extra)
}
