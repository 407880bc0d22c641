package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fabianabarca/estimator/logging"
)

const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

type Config struct {
	Storage     string
	SQLiteDir   string
	DatabaseURL string

	LogLevel  slog.Level
	LogFormat string

	// Empty disables writing metrics.
	MetricsFile string

	HTTPTimeout time.Duration
	HTTPMaxSize int

	// Empty disables the on-disk download cache.
	CacheDir string
	CacheTTL time.Duration

	Strict bool
}

// Loads configuration from the environment. Variables may also be
// set in the given .env files (default ".env"), which never override
// the environment and are ignored if missing.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	cfg := &Config{
		Storage:     strings.ToLower(getenvDefault("ESTIMATOR_STORAGE", StorageSQLite)),
		SQLiteDir:   getenvDefault("ESTIMATOR_SQLITE_DIR", "."),
		DatabaseURL: firstNonEmpty(os.Getenv("ESTIMATOR_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		LogFormat:   strings.ToLower(getenvDefault("ESTIMATOR_LOG_FORMAT", "text")),
		MetricsFile: os.Getenv("ESTIMATOR_METRICS_FILE"),
		CacheDir:    os.Getenv("ESTIMATOR_CACHE_DIR"),
	}

	level, err := logging.ParseLevel(getenvDefault("ESTIMATOR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid ESTIMATOR_LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	cfg.HTTPTimeout, err = durationDefault("ESTIMATOR_HTTP_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.CacheTTL, err = durationDefault("ESTIMATOR_CACHE_TTL", 12*time.Hour)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ESTIMATOR_HTTP_MAX_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid ESTIMATOR_HTTP_MAX_SIZE: %q", v)
		}
		cfg.HTTPMaxSize = n
	} else {
		cfg.HTTPMaxSize = 800 << 20
	}

	if v := os.Getenv("ESTIMATOR_STRICT"); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "y", "on":
			cfg.Strict = true
		default:
			cfg.Strict = false
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Checks settings that may also have been overridden by flags.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("postgres storage requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid storage %q, use memory, sqlite or postgres", c.Storage)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, use text or json", c.LogFormat)
	}

	return nil
}

func durationDefault(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return d, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
