package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"calllog_server/pkg/apperr"
	"calllog_server/pkg/crypto"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "calllog"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseDriver string // postgres | sqlite
	DatabaseURL    string
	MongoDBURL     string
	MongoDBName    string
	RedisURL       string

	// Remote directory (People API)
	DirectoryEnabled      bool
	DirectoryClientID     string
	DirectoryClientSecret string
	DirectoryRefreshToken string
	DirectoryTokenURL     string
	DirectoryTimeoutSec   int
	// DirectoryRequestsPerSec caps People API searches; the same amount again
	// is allowed as burst.
	DirectoryRequestsPerSec int

	// Refresh
	RefreshInterval      time.Duration
	RefreshBatchLimit    int
	LookupMaxConcurrency int

	// Watermarks and flags: sql | redis
	PreferencesStore string

	// Realtime cache
	RealtimeCacheMaxEntries int
	RealtimeCacheTTL        time.Duration
	RealtimeWriteBack       bool
	RealtimeLookupTimeout   time.Duration

	// Phone numbers
	DefaultCountryISO string
	VoicemailNumbers  []string

	// Consumer (Redis Stream)
	WorkerID          string
	ConsumerBlockMS   int
	ConsumerBatchSize int
	StreamMaxLen      int64

	// Postgres LISTEN trigger
	ChangeListenerEnabled  bool
	ChangeListenerDebounce time.Duration

	// Coalescing policy (optional YAML file)
	PolicyFile string
	Policy     PolicyConfig
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseDriver: getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MongoDBURL:     getEnv("MONGODB_URL", ""),
		MongoDBName:    getEnv("MONGODB_DATABASE", "calllog"),
		RedisURL:       getEnv("REDIS_URL", ""),

		// Remote directory
		DirectoryEnabled:        getEnvBool("DIRECTORY_ENABLED", false),
		DirectoryClientID:       getEnv("DIRECTORY_CLIENT_ID", ""),
		DirectoryClientSecret:   getEnv("DIRECTORY_CLIENT_SECRET", ""),
		DirectoryRefreshToken:   getEnv("DIRECTORY_REFRESH_TOKEN", ""),
		DirectoryTokenURL:       getEnv("DIRECTORY_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		DirectoryTimeoutSec:     getEnvInt("DIRECTORY_TIMEOUT_SEC", 5),
		DirectoryRequestsPerSec: getEnvInt("DIRECTORY_REQUESTS_PER_SEC", 5),

		// Refresh
		RefreshInterval:      time.Duration(getEnvInt("REFRESH_INTERVAL_SEC", 60)) * time.Second,
		RefreshBatchLimit:    getEnvInt("REFRESH_BATCH_LIMIT", 1000),
		LookupMaxConcurrency: getEnvInt("LOOKUP_MAX_CONCURRENCY", 8),

		PreferencesStore: getEnv("PREFERENCES_STORE", "sql"),

		// Realtime cache
		RealtimeCacheMaxEntries: getEnvInt("REALTIME_CACHE_MAX_ENTRIES", 1000),
		RealtimeCacheTTL:        time.Duration(getEnvInt("REALTIME_CACHE_TTL_SEC", 600)) * time.Second,
		RealtimeWriteBack:       getEnvBool("REALTIME_WRITE_BACK", true),
		RealtimeLookupTimeout:   time.Duration(getEnvInt("REALTIME_LOOKUP_TIMEOUT_SEC", 10)) * time.Second,

		// Phone numbers
		DefaultCountryISO: strings.ToUpper(getEnv("DEFAULT_COUNTRY_ISO", "US")),
		VoicemailNumbers:  getEnvSlice("VOICEMAIL_NUMBERS", nil),

		// Consumer
		WorkerID:          getEnv("WORKER_ID", generateWorkerID()),
		ConsumerBlockMS:   getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerBatchSize: getEnvInt("CONSUMER_BATCH_SIZE", 10),
		StreamMaxLen:      int64(getEnvInt("STREAM_MAX_LEN", 10000)),

		ChangeListenerEnabled:  getEnvBool("CHANGE_LISTENER_ENABLED", true),
		ChangeListenerDebounce: time.Duration(getEnvInt("CHANGE_LISTENER_DEBOUNCE_MS", 500)) * time.Millisecond,

		PolicyFile: getEnv("POLICY_FILE", ""),
		Policy:     DefaultPolicy(),
	}

	// DIRECTORY_REFRESH_TOKEN may be sealed with ENCRYPTION_KEY ("enc:...")
	token, err := crypto.Open(cfg.DirectoryRefreshToken, os.Getenv("ENCRYPTION_KEY"))
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("DIRECTORY_REFRESH_TOKEN: %v", err))
	}
	cfg.DirectoryRefreshToken = token

	if cfg.PolicyFile != "" {
		policy, err := LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Policy = policy
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return apperr.ConfigError(fmt.Sprintf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		return apperr.ConfigError("DATABASE_URL is required")
	}
	switch c.PreferencesStore {
	case "sql":
	case "redis":
		if c.RedisURL == "" {
			return apperr.ConfigError("PREFERENCES_STORE=redis requires REDIS_URL")
		}
	default:
		return apperr.ConfigError(fmt.Sprintf("unsupported PREFERENCES_STORE %q", c.PreferencesStore))
	}
	if c.RefreshBatchLimit <= 0 {
		return apperr.ConfigError("REFRESH_BATCH_LIMIT must be positive")
	}
	if c.LookupMaxConcurrency <= 0 {
		c.LookupMaxConcurrency = 1
	}
	if c.DirectoryEnabled && (c.DirectoryClientID == "" || c.DirectoryRefreshToken == "") {
		return apperr.ConfigError("DIRECTORY_CLIENT_ID and DIRECTORY_REFRESH_TOKEN are required when the directory is enabled")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
