package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	PollInterval    time.Duration
	CleanupInterval time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string

	UpstreamBaseURL          string
	UpstreamTimeout          time.Duration
	UpstreamPageSize         int
	UpstreamHorizon          time.Time
	UpstreamBreakerThreshold uint32
	UpstreamBreakerRecovery  time.Duration

	SheetsCredentialsFile  string
	SheetsRange            string
	SheetsTimeout          time.Duration
	SheetsBreakerThreshold uint32
	SheetsBreakerRecovery  time.Duration

	RetryMaxAttempts   uint
	RetryBaseDelay     time.Duration
	RetryOverloadDelay time.Duration

	BatchSize          int
	RecordPause        time.Duration
	BatchPause         time.Duration
	RetentionLightDays int
	RetentionDeepDays  int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	l := &loader{}
	cfg := &Config{
		DatabaseURL:     dbURL,
		HTTPAddr:        l.str("HTTP_ADDR", ":8080"),
		PollInterval:    l.duration("POLL_INTERVAL", 5*time.Minute),
		CleanupInterval: l.duration("CLEANUP_INTERVAL", 24*time.Hour),
		ShutdownTimeout: l.duration("SHUTDOWN_TIMEOUT", 30*time.Second),
		LogLevel:        l.str("LOG_LEVEL", "info"),
		LogFormat:       l.str("LOG_FORMAT", "json"),

		UpstreamBaseURL:          l.str("UPSTREAM_BASE_URL", "https://api.workiz.com/api/v1"),
		UpstreamTimeout:          l.duration("UPSTREAM_TIMEOUT", 30*time.Second),
		UpstreamPageSize:         l.integer("UPSTREAM_PAGE_SIZE", 100),
		UpstreamHorizon:          l.date("UPSTREAM_HORIZON", time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)),
		UpstreamBreakerThreshold: uint32(l.integer("UPSTREAM_BREAKER_THRESHOLD", 5)),
		UpstreamBreakerRecovery:  l.duration("UPSTREAM_BREAKER_RECOVERY", 2*time.Minute),

		SheetsCredentialsFile:  l.str("SHEETS_CREDENTIALS_FILE", ""),
		SheetsRange:            l.str("SHEETS_RANGE", "Conversions!A:G"),
		SheetsTimeout:          l.duration("SHEETS_TIMEOUT", 30*time.Second),
		SheetsBreakerThreshold: uint32(l.integer("SHEETS_BREAKER_THRESHOLD", 3)),
		SheetsBreakerRecovery:  l.duration("SHEETS_BREAKER_RECOVERY", time.Minute),

		RetryMaxAttempts:   uint(l.integer("RETRY_MAX_ATTEMPTS", 3)),
		RetryBaseDelay:     l.duration("RETRY_BASE_DELAY", time.Second),
		RetryOverloadDelay: l.duration("RETRY_OVERLOAD_DELAY", 10*time.Second),

		BatchSize:          l.integer("BATCH_SIZE", 29),
		RecordPause:        l.duration("RECORD_PAUSE", 100*time.Millisecond),
		BatchPause:         l.duration("BATCH_PAUSE", 60*time.Second),
		RetentionLightDays: l.integer("RETENTION_LIGHT_DAYS", 30),
		RetentionDeepDays:  l.integer("RETENTION_DEEP_DAYS", 365),
	}
	if l.err != nil {
		return nil, l.err
	}

	if cfg.SheetsCredentialsFile == "" {
		fmt.Println("Warning: SHEETS_CREDENTIALS_FILE not set, falling back to application default credentials")
	}

	return cfg, nil
}

// loader keeps the first parse error so Load can report it once.
type loader struct {
	err error
}

func (l *loader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		l.fail(key, v, "a non-negative duration")
		return def
	}
	return d
}

func (l *loader) integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		l.fail(key, v, "a positive integer")
		return def
	}
	return n
}

func (l *loader) date(key string, def time.Time) time.Time {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		l.fail(key, v, "a YYYY-MM-DD date")
		return def
	}
	return t
}

func (l *loader) fail(key, value, want string) {
	if l.err == nil {
		l.err = fmt.Errorf("invalid %s %q: expected %s", key, value, want)
	}
}
