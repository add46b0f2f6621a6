package worker

import (
	"context"
	"time"

	"github.com/lib/pq"

	"calllog_server/core/port/in"
	"calllog_server/pkg/logger"
)

// ChannelCallLogChanged is raised by the system_call_log trigger.
const ChannelCallLogChanged = "call_log_changed"

// ChangeListener turns Postgres notifications on the native call log into
// refresh requests. Bursts within the debounce window collapse into one.
type ChangeListener struct {
	dsn      string
	refresh  in.RefreshService
	debounce time.Duration

	listener *pq.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewChangeListener(dsn string, refresh in.RefreshService, debounce time.Duration) *ChangeListener {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &ChangeListener{
		dsn:      dsn,
		refresh:  refresh,
		debounce: debounce,
		done:     make(chan struct{}),
	}
}

func (l *ChangeListener) Start() error {
	l.listener = pq.NewListener(l.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("[ChangeListener] Listener event %d: %v", ev, err)
		}
	})
	if err := l.listener.Listen(ChannelCallLogChanged); err != nil {
		l.listener.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go l.run(ctx)

	logger.Info("[ChangeListener] Listening on %s", ChannelCallLogChanged)
	return nil
}

func (l *ChangeListener) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.listener.Close()
}

func (l *ChangeListener) run(ctx context.Context) {
	defer close(l.done)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case n := <-l.listener.Notify:
			// nil 알림은 재연결 직후: 놓친 변경이 있을 수 있음
			if n == nil {
				logger.Debug("[ChangeListener] Reconnected, scheduling refresh")
			}
			if pending == nil {
				pending = time.After(l.debounce)
			}

		case <-pending:
			pending = nil
			result := l.refresh.RefreshAsync(ctx, false)
			go func() {
				if err := <-result; err != nil && ctx.Err() == nil {
					logger.Error("[ChangeListener] Refresh failed: %v", err)
				}
			}()

		case <-time.After(90 * time.Second):
			go l.listener.Ping()
		}
	}
}
