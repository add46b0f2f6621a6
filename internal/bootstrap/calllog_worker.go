package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"calllog_server/adapter/in/worker"
	"calllog_server/adapter/out/messaging"
	"calllog_server/infra/database"
	"calllog_server/pkg/logger"
)

// Worker runs the background triggers of the refresh engine: the periodic
// scheduler, the Redis stream consumer and the Postgres change listener.
type Worker struct {
	deps     *Dependencies
	consumer *messaging.Consumer
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	zlog     zerolog.Logger

	scheduler *worker.RefreshScheduler
	listener  *worker.ChangeListener
}

func NewWorker(deps *Dependencies) *Worker {
	cfg := deps.Config
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		zlog:      logger.Component("worker"),
		scheduler: worker.NewRefreshScheduler(deps.RefreshService, cfg.RefreshInterval),
	}

	// Redis Stream Consumer (REDIS_URL 있을 경우)
	if deps.Redis != nil {
		w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Group:     "calllog-workers",
			Consumer:  cfg.WorkerID,
			Streams:   []string{messaging.StreamCallLogEvents},
			Handler:   worker.NewEventHandler(deps.RefreshService, deps.RealtimeService),
			Logger:    w.zlog,
			Block:     time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
			BatchSize: int64(cfg.ConsumerBatchSize),
		})
	}

	if cfg.DatabaseDriver == database.DriverPostgres && cfg.ChangeListenerEnabled {
		w.listener = worker.NewChangeListener(cfg.DatabaseURL, deps.RefreshService, cfg.ChangeListenerDebounce)
	}

	return w
}

// Start blocks until Stop is called.
func (w *Worker) Start() {
	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.zlog.Info().Msg("Starting Redis Stream Consumer...")
			if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
			}
		}()
	}

	if w.listener != nil {
		if err := w.listener.Start(); err != nil {
			// the scheduler still picks changes up
			w.zlog.Warn().Err(err).Msg("change listener disabled")
		}
	}

	w.scheduler.Start()
	w.zlog.Info().Dur("interval", w.deps.Config.RefreshInterval).Msg("Started Refresh Scheduler")

	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	w.cancel()

	if w.listener != nil {
		w.listener.Stop()
	}
	w.scheduler.Stop()
	w.wg.Wait()

	// queued history write-backs
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.deps.RealtimeService.Flush(flushCtx); err != nil {
		w.zlog.Warn().Err(err).Msg("realtime flush incomplete")
	}
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
