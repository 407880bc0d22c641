package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fabianabarca/estimator"
	"github.com/fabianabarca/estimator/config"
	"github.com/fabianabarca/estimator/downloader"
	"github.com/fabianabarca/estimator/logging"
	"github.com/fabianabarca/estimator/metrics"
	"github.com/fabianabarca/estimator/parse"
	"github.com/fabianabarca/estimator/storage"
)

var rootCmd = &cobra.Command{
	Use:               "estimator",
	Short:             "GTFS stop_times estimator",
	Long:              "Fits per-stop delay curves from recorded arrivals and generates GTFS stop_times from them",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	envFile     string
	storageType string
	sqliteDir   string
	databaseURL string
	logLevel    string
	logFormat   string
	metricsFile string
	cacheDir    string
	strict      bool
	headers     []string
)

// Populated by setup before any command runs.
var (
	cfg       *config.Config
	logger    *slog.Logger
	collector *metrics.Collector
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "", ".env", "File to read environment variables from")
	rootCmd.PersistentFlags().StringVarP(&storageType, "storage", "", "", "Curve storage: memory, sqlite or postgres")
	rootCmd.PersistentFlags().StringVarP(&sqliteDir, "sqlite-dir", "", "", "Directory holding the SQLite database")
	rootCmd.PersistentFlags().StringVarP(&databaseURL, "database-url", "", "", "Postgres connection string")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVarP(&logFormat, "log-format", "", "", "Log format: text or json")
	rootCmd.PersistentFlags().StringVarP(&metricsFile, "metrics-file", "", "", "Write prometheus metrics to this file when done")
	rootCmd.PersistentFlags().StringVarP(&cacheDir, "cache-dir", "", "", "Cache downloads in this directory")
	rootCmd.PersistentFlags().BoolVarP(&strict, "strict", "", false, "Abort fitting on trip occurrences without timepoint")
	rootCmd.PersistentFlags().StringSliceVarP(
		&headers,
		"header",
		"",
		[]string{},
		"HTTP header used when downloading input, on form <key>:<value>",
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Loads configuration, lets flags override it, and sets up logging
// and metrics.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("storage") {
		cfg.Storage = strings.ToLower(storageType)
	}
	if flags.Changed("sqlite-dir") {
		cfg.SQLiteDir = sqliteDir
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL = databaseURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, err = logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = strings.ToLower(logFormat)
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = cacheDir
	}
	if flags.Changed("strict") {
		cfg.Strict = strict
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err = logging.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	collector = metrics.NewCollector()

	return nil
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

func openStorage() (storage.Storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemoryStorage(), nil
	case config.StoragePostgres:
		return storage.NewPSQLStorage(cfg.DatabaseURL, false)
	}
	return storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: cfg.SQLiteDir})
}

// Creates a Manager wired to the configured storage, logger, metrics
// and download cache. Caller closes the returned storage.
func newManager() (*estimator.Manager, storage.Storage, error) {
	s, err := openStorage()
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s storage: %w", cfg.Storage, err)
	}

	m := estimator.NewManager(s)
	m.Logger = logger
	m.InputTimeout = cfg.HTTPTimeout
	m.InputMaxSize = cfg.HTTPMaxSize
	m.CacheTTL = cfg.CacheTTL
	m.Fitter.Strict = cfg.Strict
	m.Fitter.Logger = logger
	m.Fitter.Metrics = collector

	if cfg.CacheDir != "" {
		fs, err := downloader.NewFilesystemDownloader(cfg.CacheDir)
		if err != nil {
			s.Close()
			return nil, nil, err
		}
		m.Downloader = fs
	}

	return m, s, nil
}

// Resolves curves for a run: a stored set if id is given ("latest"
// for the most recent one), otherwise a set fitted from the
// observations, stored if store is set.
func resolveCurves(
	m *estimator.Manager,
	id string,
	store bool,
	source string,
	tables *parse.Tables,
) (estimator.Curves, error) {
	if id != "" {
		if id == "latest" {
			id = ""
		}
		set, curves, err := m.Curves(id)
		if err != nil {
			return nil, err
		}
		logger.Info("using stored curve set", slog.String("id", set.ID), slog.Int("curves", len(curves)))
		return curves, nil
	}

	if len(tables.Observations) == 0 {
		return nil, fmt.Errorf("no observations in input and no curve set given")
	}

	start := time.Now()
	defer func() { collector.ObserveFit(time.Since(start)) }()

	if store {
		_, curves, err := m.Fit(source, tables.Observations, time.Now())
		return curves, err
	}

	return m.Fitter.Fit(tables.Observations)
}

func writeMetrics() {
	if cfg == nil || cfg.MetricsFile == "" {
		return
	}
	if err := collector.WriteTextfile(cfg.MetricsFile, time.Now()); err != nil {
		logging.LogError(logger, "writing metrics", err, slog.String("path", cfg.MetricsFile))
	}
}

// Writes to the file at path, or to out when path is "-". The file is
// closed before returning, and a failed close is reported.
func writeOutput(out io.Writer, path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(out)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}

	if err := write(f); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}

	return nil
}
