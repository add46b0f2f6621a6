package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"

	"calllog_server/adapter/in/http"
	"calllog_server/infra/middleware"
	"calllog_server/pkg/logger"
	"calllog_server/pkg/metrics"
)

// APIOptions controls how the HTTP surface reaches the refresh engine.
type APIOptions struct {
	// PublishEvents hands refresh triggers to a separate worker process over
	// the Redis stream. Requires REDIS_URL.
	PublishEvents bool
	// TriggerLimit caps refresh/rebuild requests per client per minute;
	// 0 disables the limit.
	TriggerLimit int
}

func NewAPI(deps *Dependencies, opts APIOptions) (*fiber.App, func()) {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		StrictRouting:         false,
		CaseSensitive:         false,

		// go-json: 표준 encoding/json 대비 빠른 JSON 직렬화
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 6 * time.Minute, // wait=true refreshes
		IdleTimeout:  2 * time.Minute,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	health := http.NewHealthHandler().
		WithCheck("sql", http.PingFunc(deps.SQLDB.PingContext))
	if deps.DB != nil {
		// sqlite runs a single connection; utilization there says nothing
		health.WithCheck("sql_pool", http.PingFunc(func(context.Context) error {
			stats := metrics.GetDBPoolStats(deps.SQLDB.DB)
			if metrics.AssessDBPoolHealth(stats) == metrics.PoolUnhealthy {
				return fmt.Errorf("connection pool exhausted: %d/%d in use, %d waits", stats.InUse, stats.MaxOpenConnections, stats.WaitCount)
			}
			return nil
		}))
	}
	if deps.Redis != nil {
		health.WithCheck("redis", http.PingFunc(func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}))
	}
	if deps.MongoDB != nil {
		health.WithCheck("mongodb", http.PingFunc(func(ctx context.Context) error {
			return deps.MongoDB.Ping(ctx, nil)
		}))
	}
	health.Register(app)

	api := app.Group("/api/v1")

	cleanup := func() {}
	if opts.TriggerLimit > 0 {
		limiter := middleware.NewTriggerLimiter(opts.TriggerLimit, time.Minute)
		api.Use("/calllog/refresh", limiter.Handler())
		api.Use("/calllog/rebuild", limiter.Handler())
		cleanup = limiter.Stop
	}
	api.Use("/calllog/dirty", middleware.NoCache())
	api.Use(middleware.ETag())

	handler := http.NewCallLogHandler(deps.RefreshService, deps.QueryService, deps.RealtimeService)
	if opts.PublishEvents {
		if deps.Producer != nil {
			handler.WithPublisher(deps.Producer)
		} else {
			logger.Warn("Event publishing requested but REDIS_URL is not set; refreshes run in-process")
		}
	}
	handler.Register(api)

	ingest := http.NewIngestHandler(deps.SystemLog, deps.ContactsRepo, cfg.DefaultCountryISO)
	if deps.SpamSignals != nil {
		ingest.WithSpam(deps.SpamSignals)
	}
	if deps.Voicemails != nil {
		ingest.WithVoicemails(deps.Voicemails)
	}
	ingest.Register(api)

	return app, cleanup
}
