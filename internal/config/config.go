// Package config provides client and development server configuration through
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"

	syncer "github.com/iudanet/coachsync/internal/client/sync"
)

// EnvPrefix prefixes every variable name.
const EnvPrefix = "COACHSYNC_"

// Config holds all application configuration.
type Config struct {
	// ServerURL is the backend base URL used by the client.
	ServerURL string
	// DBPath is the path of the client bbolt database.
	DBPath string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is text or json.
	LogFormat string
	// LogFile enables rotating file output instead of stderr.
	LogFile string

	// SyncRetryableStatuses is a comma separated list of 4xx codes retried with backoff.
	SyncRetryableStatuses string
	// SyncMaxRetries is the retry budget before an item is dead-lettered.
	SyncMaxRetries int
	// SyncBaseDelay is the first backoff delay.
	SyncBaseDelay time.Duration
	// SyncMaxDelay caps the backoff delay.
	SyncMaxDelay time.Duration
	// SyncDebounce coalesces enqueue bursts into one wake-up.
	SyncDebounce time.Duration
	// SyncHeartbeat is the safety net interval of the monitor.
	SyncHeartbeat time.Duration
	// SyncProbeInterval is the health probe interval; zero keeps only the
	// probe at daemon start.
	SyncProbeInterval time.Duration
	// HTTPTimeout bounds every backend request.
	HTTPTimeout time.Duration

	// MetricsEnabled starts the Prometheus endpoint in daemon mode.
	MetricsEnabled bool
	// MetricsAddr is the listen address of the metrics server.
	MetricsAddr string

	// MasterPassword unlocks the stored session non-interactively (daemon mode).
	MasterPassword string

	// ServerAddr is the listen address of the development server.
	ServerAddr string
	// ServerDBPath is the SQLite database of the development server.
	ServerDBPath string
	// JWTSecret signs access tokens.
	JWTSecret string
	// JWTTTL is the access token lifetime.
	JWTTTL time.Duration
	// RateLimitRPS is the per-client request rate of the development server.
	RateLimitRPS float64
	// RateLimitBurst is the per-client burst size.
	RateLimitBurst int
}

// Load loads configuration from environment variables and a .env file.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	return &Config{
		ServerURL: env.GetString(EnvPrefix+"SERVER_URL", "http://localhost:8080"),
		DBPath:    env.GetString(EnvPrefix+"DB_PATH", "coachsync.db"),

		// Logging
		LogLevel:  env.GetString(EnvPrefix+"LOG_LEVEL", "info"),
		LogFormat: env.GetString(EnvPrefix+"LOG_FORMAT", "text"),
		LogFile:   env.GetString(EnvPrefix+"LOG_FILE", ""),

		// Sync engine
		SyncMaxRetries:        env.GetInt(EnvPrefix+"SYNC_MAX_RETRIES", 5),
		SyncBaseDelay:         env.GetDuration(EnvPrefix+"SYNC_BASE_DELAY_MS", 1000, time.Millisecond),
		SyncMaxDelay:          env.GetDuration(EnvPrefix+"SYNC_MAX_DELAY_SECONDS", 300, time.Second),
		SyncDebounce:          env.GetDuration(EnvPrefix+"SYNC_DEBOUNCE_MS", 100, time.Millisecond),
		SyncHeartbeat:         env.GetDuration(EnvPrefix+"SYNC_HEARTBEAT_SECONDS", 30, time.Second),
		SyncProbeInterval:     env.GetDuration(EnvPrefix+"SYNC_PROBE_SECONDS", 10, time.Second),
		SyncRetryableStatuses: env.GetString(EnvPrefix+"SYNC_RETRYABLE_STATUSES", "408,429"),
		HTTPTimeout:           env.GetDuration(EnvPrefix+"HTTP_TIMEOUT_SECONDS", 30, time.Second),

		// Metrics
		MetricsEnabled: env.GetBool(EnvPrefix+"METRICS_ENABLED", false),
		MetricsAddr:    env.GetString(EnvPrefix+"METRICS_ADDR", "127.0.0.1:9464"),

		MasterPassword: env.GetString(EnvPrefix+"MASTER_PASSWORD", ""),

		// Development server
		ServerAddr:     env.GetString(EnvPrefix+"SERVER_ADDR", ":8080"),
		ServerDBPath:   env.GetString(EnvPrefix+"SERVER_DB_PATH", "coachsync-server.db"),
		JWTSecret:      env.GetString(EnvPrefix+"JWT_SECRET", ""),
		JWTTTL:         env.GetDuration(EnvPrefix+"JWT_TTL_MINUTES", 15, time.Minute),
		RateLimitRPS:   env.GetFloat64(EnvPrefix+"RATE_LIMIT_RPS", 20),
		RateLimitBurst: env.GetInt(EnvPrefix+"RATE_LIMIT_BURST", 40),
	}
}

// RetryableStatuses parses SyncRetryableStatuses.
func (c *Config) RetryableStatuses() ([]int, error) {
	return syncer.ParseStatuses(c.SyncRetryableStatuses)
}

// Validate checks the client settings.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerURL == "" {
		errs = append(errs, errors.New("server url is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if c.SyncMaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("sync max retries must be positive, got %d", c.SyncMaxRetries))
	}
	if c.SyncBaseDelay <= 0 {
		errs = append(errs, errors.New("sync base delay must be positive"))
	}
	if c.SyncMaxDelay < c.SyncBaseDelay {
		errs = append(errs, errors.New("sync max delay must not be less than the base delay"))
	}
	if c.SyncDebounce <= 0 {
		errs = append(errs, errors.New("sync debounce must be positive"))
	}
	if c.SyncHeartbeat <= 0 {
		errs = append(errs, errors.New("sync heartbeat must be positive"))
	}
	if c.SyncProbeInterval < 0 {
		errs = append(errs, errors.New("sync probe interval must not be negative"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("http timeout must be positive"))
	}
	if _, err := c.RetryableStatuses(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// ValidateServer checks the development server settings.
func (c *Config) ValidateServer() error {
	var errs []error
	if c.ServerAddr == "" {
		errs = append(errs, errors.New("server addr is required"))
	}
	if c.ServerDBPath == "" {
		errs = append(errs, errors.New("server db path is required"))
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("jwt secret must be at least 32 characters"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("jwt ttl must be positive"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	return errors.Join(errs...)
}

// loadDotEnv searches for a .env file from the current directory up to the
// root directory and loads the first one found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
