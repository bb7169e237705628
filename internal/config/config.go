// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server, logging,
// store, cache, sync, warming, rollout, remote-collaborator and observability
// settings for the Today Feed cache daemon.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// CacheConfig holds the content cache and lifecycle settings.
type CacheConfig struct {
	MaxBytes              int64          // CACHE_MAX_BYTES, aggregate ceiling
	HistoryLimit          int            // CACHE_HISTORY_LIMIT
	SchemaVersion         int            // CACHE_SCHEMA_VERSION
	Timezone              string         // CACHE_TIMEZONE, IANA name or "Local"
	Location              *time.Location // resolved from Timezone
	RefreshHour           int            // CACHE_REFRESH_HOUR, local hour of the daily refresh
	AgeWarning            time.Duration  // CACHE_AGE_WARNING
	StaleNoticeInterval   time.Duration  // CACHE_STALE_NOTICE_INTERVAL
	TestMode              bool           // CACHE_TEST_MODE, headless: no services, no timers
	TimezoneCheckInterval time.Duration  // CACHE_TIMEZONE_CHECK_INTERVAL
	MaintenanceInterval   time.Duration  // CACHE_MAINTENANCE_INTERVAL
}

// SyncConfig holds the pending-interaction queue settings.
type SyncConfig struct {
	QueueLimit     int           // SYNC_QUEUE_LIMIT
	ErrorLimit     int           // SYNC_ERROR_LIMIT
	MaxRetries     int           // SYNC_MAX_RETRIES
	BaseDelay      time.Duration // SYNC_BASE_DELAY
	ItemRetryLimit int           // SYNC_ITEM_RETRY_LIMIT
	Retention      time.Duration // SYNC_RETENTION
}

// WarmingConfig holds the static warming flags.
type WarmingConfig struct {
	Enabled        bool          // WARMING_ENABLED
	OnConnectivity bool          // WARMING_ON_CONNECTIVITY
	Interval       time.Duration // WARMING_INTERVAL
	WindowStart    int           // WARMING_WINDOW_START, local hour (inclusive)
	WindowEnd      int           // WARMING_WINDOW_END, local hour (exclusive)
	MinAge         time.Duration // WARMING_MIN_AGE
}

// RolloutConfig holds the inputs of the rollout gate that are not
// administrative state.
type RolloutConfig struct {
	Environment   string   // APP_ENV: production|staging|development
	Salt          string   // ROLLOUT_SALT for the user_id_hash strategy
	InternalUsers []string // INTERNAL_USERS
}

// RemoteConfig points at the content/sync API.
type RemoteConfig struct {
	BaseURL string        // CONTENT_API_URL; empty selects the simulated collaborator
	Timeout time.Duration // CONTENT_API_TIMEOUT
	Probe   time.Duration // CONTENT_API_PROBE_INTERVAL; how often reachability is polled
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Store
	DBPath string // SQLite path

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	Cache   CacheConfig
	Sync    SyncConfig
	Warming WarmingConfig
	Rollout RolloutConfig
	Remote  RemoteConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Store
		DBPath: getenv("DB_PATH", "todayfeed.db"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 10.0),
		RateBurst: getint("RATE_BURST", 20),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Cache: CacheConfig{
			MaxBytes:              getint64("CACHE_MAX_BYTES", 10<<20),
			HistoryLimit:          getint("CACHE_HISTORY_LIMIT", 7),
			SchemaVersion:         getint("CACHE_SCHEMA_VERSION", 2),
			Timezone:              getenv("CACHE_TIMEZONE", "Local"),
			RefreshHour:           getint("CACHE_REFRESH_HOUR", 3),
			AgeWarning:            getdur("CACHE_AGE_WARNING", 48*time.Hour),
			StaleNoticeInterval:   getdur("CACHE_STALE_NOTICE_INTERVAL", 60*time.Second),
			TestMode:              getbool("CACHE_TEST_MODE", false),
			TimezoneCheckInterval: getdur("CACHE_TIMEZONE_CHECK_INTERVAL", 2*time.Hour),
			MaintenanceInterval:   getdur("CACHE_MAINTENANCE_INTERVAL", 6*time.Hour),
		},

		Sync: SyncConfig{
			QueueLimit:     getint("SYNC_QUEUE_LIMIT", 50),
			ErrorLimit:     getint("SYNC_ERROR_LIMIT", 50),
			MaxRetries:     getint("SYNC_MAX_RETRIES", 3),
			BaseDelay:      getdur("SYNC_BASE_DELAY", 2*time.Second),
			ItemRetryLimit: getint("SYNC_ITEM_RETRY_LIMIT", 10),
			Retention:      getdur("SYNC_RETENTION", 7*24*time.Hour),
		},

		Warming: WarmingConfig{
			Enabled:        getbool("WARMING_ENABLED", true),
			OnConnectivity: getbool("WARMING_ON_CONNECTIVITY", true),
			Interval:       getdur("WARMING_INTERVAL", time.Hour),
			WindowStart:    getint("WARMING_WINDOW_START", 2),
			WindowEnd:      getint("WARMING_WINDOW_END", 6),
			MinAge:         getdur("WARMING_MIN_AGE", 6*time.Hour),
		},

		Rollout: RolloutConfig{
			Environment:   strings.ToLower(getenv("APP_ENV", "production")),
			Salt:          getenv("ROLLOUT_SALT", "today-feed"),
			InternalUsers: splitCSV(getenv("INTERNAL_USERS", "")),
		},

		Remote: RemoteConfig{
			BaseURL: strings.TrimRight(getenv("CONTENT_API_URL", ""), "/"),
			Timeout: getdur("CONTENT_API_TIMEOUT", 5*time.Second),
			Probe:   getdur("CONTENT_API_PROBE_INTERVAL", 30*time.Second),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "today-feed-cache"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Rollout.Environment == "dev" {
		cfg.Rollout.Environment = "development"
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every setting and resolves Cache.Location. It is called by
// Load and again by the lifecycle manager before any cache state is touched.
func (cfg *Config) Validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if err := cfg.Cache.validate(); err != nil {
		return err
	}
	if err := cfg.Sync.validate(); err != nil {
		return err
	}
	if err := cfg.Warming.validate(); err != nil {
		return err
	}
	switch cfg.Rollout.Environment {
	case "production", "staging", "development":
	default:
		return errors.New("APP_ENV must be one of: production, staging, development")
	}
	if cfg.Remote.Timeout <= 0 {
		return errors.New("CONTENT_API_TIMEOUT must be > 0")
	}
	if cfg.Remote.Probe <= 0 {
		return errors.New("CONTENT_API_PROBE_INTERVAL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

func (c *CacheConfig) validate() error {
	if c.MaxBytes <= 0 {
		return errors.New("CACHE_MAX_BYTES must be > 0")
	}
	if c.HistoryLimit < 1 {
		return errors.New("CACHE_HISTORY_LIMIT must be >= 1")
	}
	if c.SchemaVersion < 1 {
		return errors.New("CACHE_SCHEMA_VERSION must be >= 1")
	}
	if c.RefreshHour < 0 || c.RefreshHour > 23 {
		return errors.New("CACHE_REFRESH_HOUR must be in [0,23]")
	}
	if c.AgeWarning <= 0 || c.StaleNoticeInterval <= 0 {
		return errors.New("CACHE_AGE_WARNING and CACHE_STALE_NOTICE_INTERVAL must be > 0")
	}
	if c.TimezoneCheckInterval <= 0 || c.MaintenanceInterval <= 0 {
		return errors.New("cache timer intervals must be positive durations")
	}
	loc, err := loadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("CACHE_TIMEZONE: %w", err)
	}
	c.Location = loc
	return nil
}

func (s *SyncConfig) validate() error {
	if s.QueueLimit < 1 || s.ErrorLimit < 1 {
		return errors.New("SYNC_QUEUE_LIMIT and SYNC_ERROR_LIMIT must be >= 1")
	}
	if s.MaxRetries < 0 || s.ItemRetryLimit < 1 {
		return errors.New("SYNC_MAX_RETRIES must be >= 0 and SYNC_ITEM_RETRY_LIMIT >= 1")
	}
	if s.BaseDelay <= 0 || s.Retention <= 0 {
		return errors.New("SYNC_BASE_DELAY and SYNC_RETENTION must be > 0")
	}
	return nil
}

func (w *WarmingConfig) validate() error {
	if w.Interval <= 0 || w.MinAge <= 0 {
		return errors.New("WARMING_INTERVAL and WARMING_MIN_AGE must be > 0")
	}
	if w.WindowStart < 0 || w.WindowStart > 23 || w.WindowEnd < 0 || w.WindowEnd > 24 {
		return errors.New("WARMING_WINDOW_START must be in [0,23] and WARMING_WINDOW_END in [0,24]")
	}
	return nil
}

// IsInternalUser reports whether id is listed in INTERNAL_USERS.
func (r RolloutConfig) IsInternalUser(id string) bool {
	for _, u := range r.InternalUsers {
		if u == id {
			return true
		}
	}
	return false
}

// ---- helpers (no external deps) ----

func loadLocation(name string) (*time.Location, error) {
	switch strings.TrimSpace(name) {
	case "", "Local", "local":
		return time.Local, nil
	case "UTC", "utc":
		return time.UTC, nil
	}
	return time.LoadLocation(strings.TrimSpace(name))
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
