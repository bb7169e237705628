package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
}

// --- Load defaults ---

func TestLoad_CacheDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	c := cfg.Cache
	if c.MaxBytes != 10<<20 || c.HistoryLimit != 7 || c.SchemaVersion != 2 || c.RefreshHour != 3 {
		t.Fatalf("cache defaults unexpected: %+v", c)
	}
	if c.StaleNoticeInterval != 60*time.Second || c.TimezoneCheckInterval != 2*time.Hour {
		t.Fatalf("cache intervals unexpected: %+v", c)
	}
	if c.Location != time.Local || c.TestMode {
		t.Fatalf("cache location/test mode unexpected: %+v", c)
	}

	s := cfg.Sync
	if s.QueueLimit != 50 || s.ErrorLimit != 50 || s.MaxRetries != 3 || s.BaseDelay != 2*time.Second {
		t.Fatalf("sync defaults unexpected: %+v", s)
	}

	if !cfg.Warming.Enabled || cfg.Warming.WindowStart != 2 || cfg.Warming.WindowEnd != 6 {
		t.Fatalf("warming defaults unexpected: %+v", cfg.Warming)
	}
	if cfg.Rollout.Environment != "production" || cfg.Remote.BaseURL != "" {
		t.Fatalf("rollout/remote defaults unexpected: %+v %+v", cfg.Rollout, cfg.Remote)
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("GIN_MODE", "weird")    // normalizes to "release"
	t.Setenv("LOG_LEVEL", "warning") // normalizes to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("DB_PATH", "cache.sqlite")
	t.Setenv("RATE_RPS", "x") // parse failure -> default
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	t.Setenv("CACHE_MAX_BYTES", "2048")
	t.Setenv("CACHE_HISTORY_LIMIT", "3")
	t.Setenv("CACHE_TIMEZONE", "America/New_York")
	t.Setenv("CACHE_TEST_MODE", "on")
	t.Setenv("SYNC_QUEUE_LIMIT", "10")
	t.Setenv("SYNC_BASE_DELAY", "250ms")
	t.Setenv("WARMING_ENABLED", "0")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("INTERNAL_USERS", "alice, bob")
	t.Setenv("CONTENT_API_URL", "http://content.local/")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api/v2" || cfg.DBPath != "cache.sqlite" {
		t.Fatalf("logging/store unexpected: %+v", cfg)
	}
	if cfg.RateRPS != 10.0 {
		t.Fatalf("RATE_RPS fallback unexpected: %v", cfg.RateRPS)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Cache.MaxBytes != 2048 || cfg.Cache.HistoryLimit != 3 || !cfg.Cache.TestMode {
		t.Fatalf("cache unexpected: %+v", cfg.Cache)
	}
	if cfg.Cache.Location == nil || cfg.Cache.Location.String() != "America/New_York" {
		t.Fatalf("location unexpected: %v", cfg.Cache.Location)
	}
	if cfg.Sync.QueueLimit != 10 || cfg.Sync.BaseDelay != 250*time.Millisecond {
		t.Fatalf("sync unexpected: %+v", cfg.Sync)
	}
	if cfg.Warming.Enabled {
		t.Fatalf("warming should be disabled")
	}
	if cfg.Rollout.Environment != "development" || !cfg.Rollout.IsInternalUser("bob") || cfg.Rollout.IsInternalUser("carol") {
		t.Fatalf("rollout unexpected: %+v", cfg.Rollout)
	}
	if cfg.Remote.BaseURL != "http://content.local" {
		t.Fatalf("remote base url unexpected: %q", cfg.Remote.BaseURL)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"empty PORT via spaces", "PORT", "   ", "PORT must not be empty"},
		{"non-positive timeouts", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"max header bytes <= 0", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"empty DB_PATH", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"rate rps negative", "RATE_RPS", "-1", "RATE_RPS"},
		{"rate burst < 1", "RATE_BURST", "0", "RATE_BURST"},
		{"hsts max age negative", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"idempotency ttl non-positive", "IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"cache max bytes", "CACHE_MAX_BYTES", "0", "CACHE_MAX_BYTES"},
		{"history limit", "CACHE_HISTORY_LIMIT", "0", "CACHE_HISTORY_LIMIT"},
		{"refresh hour", "CACHE_REFRESH_HOUR", "24", "CACHE_REFRESH_HOUR"},
		{"unknown timezone", "CACHE_TIMEZONE", "Mars/Olympus_Mons", "CACHE_TIMEZONE"},
		{"queue limit", "SYNC_QUEUE_LIMIT", "0", "SYNC_QUEUE_LIMIT"},
		{"base delay", "SYNC_BASE_DELAY", "0s", "SYNC_BASE_DELAY"},
		{"warming window", "WARMING_WINDOW_START", "25", "WARMING_WINDOW_START"},
		{"app env", "APP_ENV", "qa", "APP_ENV"},
		{"remote timeout", "CONTENT_API_TIMEOUT", "0s", "CONTENT_API_TIMEOUT"},
		{"remote probe", "CONTENT_API_PROBE_INTERVAL", "0s", "CONTENT_API_PROBE_INTERVAL"},
		{"otel sample ratio out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected %s validation error, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidate_ResolvesLocationOnHandBuiltConfig(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg.Cache.Timezone = "UTC"
	cfg.Cache.Location = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Cache.Location != time.UTC {
		t.Fatalf("expected UTC location, got %v", cfg.Cache.Location)
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_numbersAndDurations(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}
	t.Setenv("I64_VALID", "10485760")
	if getint64("I64_VALID", 0) != 10<<20 {
		t.Fatalf("getint64 parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		t.Setenv("B_T", v)
		if !getbool("B_T", false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for _, v := range []string{"0", "false", " no ", "N", "off"} {
		t.Setenv("B_F", v)
		if getbool("B_F", true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: %#v", got)
	}
	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}

// Ensure tests don't leak env to others.
func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Unsetenv("CACHE_TIMEZONE")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
