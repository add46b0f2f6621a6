package worker

import (
	"context"
	"time"

	"calllog_server/core/port/in"
	"calllog_server/pkg/logger"
)

// =============================================================================
// RefreshScheduler - 주기적 dirty-check 리프레시
// =============================================================================

const (
	DefaultRefreshInterval = 30 * time.Second
	refreshRunTimeout      = 5 * time.Minute
)

type RefreshScheduler struct {
	refresh      in.RefreshService
	interval     time.Duration
	initialDelay time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewRefreshScheduler(refresh in.RefreshService, interval time.Duration) *RefreshScheduler {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RefreshScheduler{
		refresh:      refresh,
		interval:     interval,
		initialDelay: time.Second,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

func (s *RefreshScheduler) Start() {
	logger.Info("[RefreshScheduler] Starting (interval: %v)", s.interval)
	go s.run()
}

// Stop waits for the running refresh to return.
func (s *RefreshScheduler) Stop() {
	logger.Info("[RefreshScheduler] Stopping...")
	s.cancel()
	<-s.done
}

func (s *RefreshScheduler) run() {
	defer close(s.done)

	select {
	case <-s.ctx.Done():
		return
	case <-time.After(s.initialDelay):
	}
	s.tick()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[RefreshScheduler] Stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *RefreshScheduler) tick() {
	ctx, cancel := context.WithTimeout(s.ctx, refreshRunTimeout)
	defer cancel()

	if err := s.refresh.RefreshWithDirtyCheck(ctx); err != nil && s.ctx.Err() == nil {
		logger.Error("[RefreshScheduler] Refresh failed: %v", err)
	}
}

// SetInitialDelay sets the delay before the first run (for testing).
func (s *RefreshScheduler) SetInitialDelay(d time.Duration) {
	s.initialDelay = d
}
