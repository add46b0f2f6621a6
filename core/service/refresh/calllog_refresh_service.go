// Package refresh rebuilds the annotated call log from its data sources.
package refresh

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"calllog_server/core/domain"
	"calllog_server/core/port/in"
	"calllog_server/core/port/out"
	"calllog_server/core/service/common"
	"calllog_server/pkg/apperr"
	"calllog_server/pkg/concurrent"
	"calllog_server/pkg/logger"
	"calllog_server/pkg/metrics"
)

var _ in.RefreshService = (*Service)(nil)

// Service runs refresh cycles one at a time on a serial queue.
//
// A cycle is: dirty check (unless forced) -> fill every source in
// registration order -> apply atomically -> commit every source. Any failure
// aborts the cycle before the commit, leaving watermarks and the force
// rebuild flag untouched so the next trigger starts over.
type Service struct {
	sources []out.DataSource
	applier out.MutationApplier
	prefs   *common.Preferences
	queue   *concurrent.SerialQueue
	log     zerolog.Logger
}

// NewService registers sources in order; the first is the primary source.
func NewService(sources []out.DataSource, applier out.MutationApplier, prefs *common.Preferences) *Service {
	return &Service{
		sources: sources,
		applier: applier,
		prefs:   prefs,
		queue:   concurrent.NewSerialQueue(16),
		log:     logger.Component("refresh"),
	}
}

// Sources returns the registered sources in order.
func (s *Service) Sources() []out.DataSource {
	return s.sources
}

// Refresh queues a cycle and waits for its own result. forceRebuild skips
// the dirty check.
func (s *Service) Refresh(ctx context.Context, forceRebuild bool) error {
	return s.queue.Do(ctx, func(ctx context.Context) error {
		return s.run(ctx, forceRebuild)
	})
}

// RefreshAsync queues a cycle. The channel receives that cycle's result.
func (s *Service) RefreshAsync(ctx context.Context, forceRebuild bool) <-chan error {
	return s.queue.Submit(ctx, func(ctx context.Context) error {
		return s.run(ctx, forceRebuild)
	})
}

func (s *Service) RefreshWithDirtyCheck(ctx context.Context) error {
	return s.Refresh(ctx, false)
}

func (s *Service) RefreshWithoutDirtyCheck(ctx context.Context) error {
	return s.Refresh(ctx, true)
}

// MarkForceRebuild makes the next dirty check report dirty until a cycle
// commits.
func (s *Service) MarkForceRebuild(ctx context.Context) error {
	return s.prefs.PutBool(ctx, common.KeyForceRebuild, true)
}

// IsDirty reports the force rebuild flag, else whether any source is dirty.
// Sources are checked in parallel and the first true cancels the rest.
func (s *Service) IsDirty(ctx context.Context) (bool, error) {
	force, err := s.prefs.GetBool(ctx, common.KeyForceRebuild)
	if err != nil {
		return false, err
	}
	if force {
		return true, nil
	}

	checks := make([]concurrent.Check, len(s.sources))
	for i, src := range s.sources {
		checks[i] = func(ctx context.Context) (bool, error) {
			dirty, err := src.IsDirty(ctx)
			if err != nil {
				return false, apperr.RefreshFailed("dirty_check:"+src.Name(), err)
			}
			return dirty, nil
		}
	}
	return concurrent.AnyTrue(ctx, checks...)
}

// Close stops the queue after the running cycle finishes.
func (s *Service) Close() {
	s.queue.Close()
}

// =============================================================================
// Cycle
// =============================================================================

func (s *Service) run(ctx context.Context, skipDirtyCheck bool) (err error) {
	start := time.Now()
	log := s.log.With().Str("refresh_id", uuid.NewString()).Logger()
	outcome := metrics.OutcomeFailed
	defer func() {
		metrics.RecordRefresh(outcome, time.Since(start))
		if err != nil {
			log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("refresh failed")
		}
	}()

	if !skipDirtyCheck {
		stageStart := time.Now()
		dirty, err := s.IsDirty(ctx)
		metrics.ObserveStage("dirty_check", time.Since(stageStart))
		if err != nil {
			return err
		}
		if !dirty {
			outcome = metrics.OutcomeClean
			log.Debug().Msg("call log clean, nothing to refresh")
			return nil
		}
	}

	mutations, err := s.fill(ctx)
	if err != nil {
		return err
	}

	if mutations.IsEmpty() {
		outcome = metrics.OutcomeEmpty
	} else {
		stageStart := time.Now()
		if err := s.applier.Apply(ctx, mutations); err != nil {
			return apperr.RefreshFailed("apply", err)
		}
		metrics.ObserveStage("apply", time.Since(stageStart))

		ins, upd, del := mutations.Counts()
		metrics.RecordMutations(ins, upd, del)
		outcome = metrics.OutcomeApplied
	}

	if err := s.commit(ctx); err != nil {
		outcome = metrics.OutcomeFailed
		return err
	}

	ins, upd, del := mutations.Counts()
	log.Info().
		Bool("forced", skipDirtyCheck).
		Int("inserts", ins).
		Int("updates", upd).
		Int("deletes", del).
		Dur("elapsed", time.Since(start)).
		Msg("refresh complete")
	return nil
}

// fill threads one mutation set through every source, strictly in order.
func (s *Service) fill(ctx context.Context) (*domain.MutationSet, error) {
	mutations := domain.NewMutationSet()
	for _, src := range s.sources {
		stageStart := time.Now()
		if err := src.Fill(ctx, mutations); err != nil {
			return nil, apperr.RefreshFailed("fill:"+src.Name(), err)
		}
		metrics.ObserveStage("fill:"+src.Name(), time.Since(stageStart))
	}
	return mutations, nil
}

func (s *Service) commit(ctx context.Context) error {
	stageStart := time.Now()
	defer func() { metrics.ObserveStage("commit", time.Since(stageStart)) }()

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range s.sources {
		g.Go(func() error {
			if err := src.OnSuccessfulFill(gctx); err != nil {
				return apperr.RefreshFailed("commit:"+src.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return s.prefs.PutBool(ctx, common.KeyForceRebuild, false)
}
