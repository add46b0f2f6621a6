// Package bootstrap wires configuration into the call log services.
package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"calllog_server/adapter/out/messaging"
	"calllog_server/adapter/out/mongodb"
	"calllog_server/adapter/out/persistence"
	"calllog_server/adapter/out/provider"
	"calllog_server/adapter/out/rediskv"
	"calllog_server/config"
	"calllog_server/core/port/out"
	"calllog_server/core/service/coalesce"
	"calllog_server/core/service/common"
	"calllog_server/core/service/datasource"
	"calllog_server/core/service/lookup"
	"calllog_server/core/service/query"
	"calllog_server/core/service/realtime"
	"calllog_server/core/service/refresh"
	"calllog_server/infra/database"
	"calllog_server/pkg/cache"
	"calllog_server/pkg/logger"
	"calllog_server/pkg/metrics"
	"calllog_server/pkg/ratelimit"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool // nil with sqlite
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	AnnotatedRepo *persistence.AnnotatedCallLogAdapter
	SystemLog     *persistence.SystemCallLogAdapter
	ContactsRepo  *persistence.ContactsLookupAdapter
	HistoryRepo   *persistence.PhoneLookupHistoryAdapter
	Voicemails    *mongodb.VoicemailAdapter   // nil without MongoDB
	SpamSignals   *rediskv.SpamSignalsAdapter // nil without Redis

	// Lookup
	Composite *lookup.Composite

	// Services
	Preferences     *common.Preferences
	RefreshService  *refresh.Service
	Coalescer       *coalesce.Coalescer
	RealtimeService *realtime.Processor
	QueryService    *query.Service

	// Messaging
	Producer *messaging.RedisProducer
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	ctx := context.Background()
	zlog := logger.Component("bootstrap")

	deps := &Dependencies{Config: cfg}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// =========================================================================
	// Storage
	// =========================================================================

	switch cfg.DatabaseDriver {
	case database.DriverPostgres:
		pool, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		deps.DB = pool
		deps.SQLDB = database.NewSQLFromPool(pool)
		closers = append(closers, pool.Close)
	default:
		db, err := database.NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		deps.SQLDB = db
	}
	closers = append(closers, func() { deps.SQLDB.Close() })

	if err := database.Migrate(ctx, deps.SQLDB, cfg.DatabaseDriver); err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := metrics.RegisterDBPool(prometheus.DefaultRegisterer, cfg.DatabaseDriver, deps.SQLDB.DB); err != nil {
		zlog.Warn().Err(err).Msg("db pool metrics not registered")
	}

	if cfg.RedisURL != "" {
		client, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Redis = client
		closers = append(closers, func() { client.Close() })
	}

	if cfg.MongoDBURL != "" {
		client, err := database.NewMongo(cfg.MongoDBURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.MongoDB = client
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })
	}

	deps.AnnotatedRepo = persistence.NewAnnotatedCallLogAdapter(deps.SQLDB)
	deps.SystemLog = persistence.NewSystemCallLogAdapter(deps.SQLDB)
	deps.ContactsRepo = persistence.NewContactsLookupAdapter(deps.SQLDB)
	deps.HistoryRepo = persistence.NewPhoneLookupHistoryAdapter(deps.SQLDB)

	var redisCache *cache.RedisCache
	if deps.Redis != nil {
		redisCache = cache.NewRedisCache(deps.Redis, "calllog")
	}

	var kv out.KeyValueStore = persistence.NewKeyValueAdapter(deps.SQLDB)
	if cfg.PreferencesStore == "redis" {
		kv = rediskv.NewRedisKeyValueAdapter(redisCache)
	}
	deps.Preferences = common.NewPreferences(kv)

	// =========================================================================
	// Lookup providers (contacts first: it wins name selection)
	// =========================================================================

	providers := []out.LookupProvider{deps.ContactsRepo}
	if cfg.DirectoryEnabled {
		directory, err := provider.NewDirectoryAdapter(ctx, &provider.DirectoryConfig{
			ClientID:       cfg.DirectoryClientID,
			ClientSecret:   cfg.DirectoryClientSecret,
			RefreshToken:   cfg.DirectoryRefreshToken,
			TokenURL:       cfg.DirectoryTokenURL,
			Timeout:        time.Duration(cfg.DirectoryTimeoutSec) * time.Second,
			MaxConcurrency: cfg.LookupMaxConcurrency,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		// Redis shares the quota window across api and worker processes
		directory.WithRateLimiter(ratelimit.NewSlidingWindowLimiter(deps.Redis, cfg.DirectoryRequestsPerSec, cfg.DirectoryRequestsPerSec))
		providers = append(providers, directory)
	}
	if len(cfg.VoicemailNumbers) > 0 {
		providers = append(providers, provider.NewVoicemailNumberProvider(cfg.VoicemailNumbers, cfg.DefaultCountryISO))
	}
	deps.Composite = lookup.NewComposite(providers, cfg.LookupMaxConcurrency)

	// =========================================================================
	// Data sources (system log first: it owns row insertion and deletion)
	// =========================================================================

	sources := buildSources(deps, redisCache, zlog)

	deps.RefreshService = refresh.NewService(sources, deps.AnnotatedRepo, deps.Preferences)
	closers = append(closers, deps.RefreshService.Close)

	deps.Coalescer = coalesce.NewCoalescer(sources, groupingPolicy(cfg.Policy), cfg.Policy.CallTypeHistory)

	lookupCache := common.NewLookupCache(&common.L1Config{
		MaxItems:        cfg.RealtimeCacheMaxEntries,
		DefaultTTL:      cfg.RealtimeCacheTTL,
		CleanupInterval: 30 * time.Second,
	})
	closers = append(closers, lookupCache.Close)

	var history out.PhoneLookupHistory
	if cfg.RealtimeWriteBack {
		history = deps.HistoryRepo
	}
	deps.RealtimeService = realtime.NewProcessor(deps.Composite, lookupCache, history, realtime.Config{
		MaxConcurrency: cfg.LookupMaxConcurrency,
		UserCountryISO: cfg.DefaultCountryISO,
		WriteBack:      cfg.RealtimeWriteBack,
		LookupTimeout:  cfg.RealtimeLookupTimeout,
	})
	closers = append(closers, deps.RealtimeService.Close)

	deps.QueryService = query.NewService(deps.AnnotatedRepo, deps.Coalescer, deps.RealtimeService)

	if deps.Redis != nil {
		deps.Producer = messaging.NewRedisProducer(deps.Redis, cfg.StreamMaxLen)
	}

	zlog.Info().
		Str("driver", cfg.DatabaseDriver).
		Int("sources", len(sources)).
		Int("providers", len(providers)).
		Bool("redis", deps.Redis != nil).
		Bool("mongo", deps.MongoDB != nil).
		Msg("dependencies ready")

	return deps, cleanup, nil
}

// buildSources registers data sources in fill order. Optional sources are
// skipped when their backing store is not configured.
func buildSources(deps *Dependencies, redisCache *cache.RedisCache, zlog zerolog.Logger) []out.DataSource {
	cfg := deps.Config
	sources := []out.DataSource{
		datasource.NewSystemSource(deps.SystemLog, deps.AnnotatedRepo, deps.Preferences, cfg.RefreshBatchLimit, cfg.DefaultCountryISO),
		datasource.NewPhoneLookupSource(deps.Composite, deps.HistoryRepo, deps.AnnotatedRepo, deps.Preferences, cfg.DefaultCountryISO),
	}

	if deps.MongoDB != nil {
		store := mongodb.NewVoicemailAdapter(deps.MongoDB.Database(cfg.MongoDBName))
		deps.Voicemails = store
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.EnsureIndexes(ctx); err != nil {
			zlog.Warn().Err(err).Msg("voicemail indexes not ensured")
		}
		cancel()
		sources = append(sources, datasource.NewVoicemailSource(store, deps.AnnotatedRepo, deps.Preferences))
	} else {
		zlog.Info().Msg("MONGODB_URL not set, voicemail source disabled")
	}

	if redisCache != nil {
		deps.SpamSignals = rediskv.NewSpamSignalsAdapter(redisCache)
		sources = append(sources, datasource.NewSpamSource(deps.SpamSignals, deps.AnnotatedRepo, deps.Preferences))
	} else {
		zlog.Info().Msg("REDIS_URL not set, spam source disabled")
	}
	return sources
}

func groupingPolicy(p config.PolicyConfig) coalesce.NumberTypeDayPolicy {
	policy := coalesce.DefaultPolicy()
	policy.SplitByDay = p.SplitByDay
	policy.SplitByPhoneAccount = p.SplitByPhoneAccount
	policy.SplitVoicemail = p.SplitVoicemail
	return policy
}
