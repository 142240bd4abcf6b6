// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// CatalogConfig holds the catalog engine connection and naming settings.
type CatalogConfig struct {
	Driver           string        // database/sql driver name (default "flightsql")
	DSN              string        // engine DSN, e.g. flightsql://trino:443?username=etl
	Name             string        // catalog name inside the engine (default "nessie_catalog")
	Source           string        // object-storage source name inside the engine (default "bronze")
	MainRef          string        // reference branches fork from and merge into (default "main")
	TableMode        string        // "projection" (default) or "location"
	StatementTimeout time.Duration // per gateway call; 0 disables
	MaxConns         int           // connection pool size (default 4)
}

// StorageConfig holds object-storage locations and credentials.
type StorageConfig struct {
	LandingURI string // raw CSV bucket, e.g. gs://mvp-landing
	BronzeURI  string // Parquet bucket, e.g. gs://mvp-bronze

	GCSKeyFile string

	S3Endpoint string
	S3Region   string
	S3KeyID    string
	S3Secret   string
	S3URLStyle string

	AzureAccountName string
	AzureAccountKey  string
}

// IngestConfig holds file-source and conversion settings.
type IngestConfig struct {
	DriveKeyFile string  // service account key for the Drive API
	DriveRPS     float64 // Drive API requests per second (default 8)
	ParquetCodec string  // default SNAPPY
	AllVarchar   bool    // read every CSV column as VARCHAR (default false)
	TempDir      string  // scratch directory for downloads (default os temp dir)
}

// PipelineConfig holds run orchestration settings.
type PipelineConfig struct {
	DatasetsFile         string        // YAML dataset manifest (default "datasets.yaml")
	BranchPrefix         string        // default "dev_"
	MaxParallel          int           // default 4
	RetryCount           int           // default 1
	RetryDelay           time.Duration // default 5m
	DropBranchAfterMerge bool          // default false
	Schedule             string        // cron expression (default "@daily")
}

// Config holds the configuration for the pipeline, its CLI and the ops API.
type Config struct {
	Catalog  CatalogConfig
	Storage  StorageConfig
	Ingest   IngestConfig
	Pipeline PipelineConfig

	MetaDBPath string // path to the SQLite run ledger (default "wap_runs.sqlite")
	ListenAddr string // ops API listen address (default ":8080")
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
// Catalog and bucket settings are validated by the commands that need them,
// so read-only commands can run without them.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Catalog: CatalogConfig{
			Driver:    os.Getenv("CATALOG_DRIVER"),
			DSN:       os.Getenv("CATALOG_DSN"),
			Name:      os.Getenv("CATALOG_NAME"),
			Source:    os.Getenv("CATALOG_SOURCE"),
			MainRef:   os.Getenv("CATALOG_MAIN_REF"),
			TableMode: strings.ToLower(os.Getenv("TABLE_MODE")),
		},
		Storage: StorageConfig{
			LandingURI:       bucketURI(os.Getenv("BUCKET_LANDING")),
			BronzeURI:        bucketURI(os.Getenv("BUCKET_BRONZE")),
			GCSKeyFile:       os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			S3Endpoint:       os.Getenv("S3_ENDPOINT"),
			S3Region:         os.Getenv("S3_REGION"),
			S3KeyID:          os.Getenv("S3_KEY_ID"),
			S3Secret:         os.Getenv("S3_SECRET"),
			S3URLStyle:       os.Getenv("S3_URL_STYLE"),
			AzureAccountName: os.Getenv("AZURE_STORAGE_ACCOUNT"),
			AzureAccountKey:  os.Getenv("AZURE_STORAGE_KEY"),
		},
		Ingest: IngestConfig{
			DriveKeyFile: os.Getenv("DRIVE_CREDENTIALS_FILE"),
			ParquetCodec: strings.ToUpper(os.Getenv("PARQUET_CODEC")),
			AllVarchar:   parseBoolEnvDefault("CSV_ALL_VARCHAR", false),
			TempDir:      os.Getenv("INGEST_TEMP_DIR"),
		},
		Pipeline: PipelineConfig{
			DatasetsFile:         os.Getenv("DATASETS_FILE"),
			BranchPrefix:         os.Getenv("BRANCH_PREFIX"),
			DropBranchAfterMerge: parseBoolEnvDefault("DROP_BRANCH_AFTER_MERGE", false),
			Schedule:             os.Getenv("SCHEDULE"),
			RetryCount:           -1,
		},
		MetaDBPath: os.Getenv("META_DB_PATH"),
		ListenAddr: os.Getenv("LISTEN_ADDR"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
		Env:        os.Getenv("ENV"),
	}

	if err := cfg.parseNumbers(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	switch cfg.Catalog.TableMode {
	case "projection", "location":
	default:
		return nil, fmt.Errorf("TABLE_MODE must be \"projection\" or \"location\", got %q", cfg.Catalog.TableMode)
	}

	if cfg.Catalog.DSN == "" {
		cfg.Warnings = append(cfg.Warnings, "CATALOG_DSN not set; catalog commands will fail")
	}
	if cfg.Storage.BronzeURI == "" || cfg.Storage.LandingURI == "" {
		cfg.Warnings = append(cfg.Warnings, "BUCKET_LANDING/BUCKET_BRONZE not set; ingestion is unavailable")
	}
	if cfg.Ingest.DriveKeyFile == "" {
		cfg.Ingest.DriveKeyFile = cfg.Storage.GCSKeyFile
	}

	if cfg.IsProduction() {
		if cfg.Catalog.DSN == "" {
			return nil, fmt.Errorf("CATALOG_DSN must be set in production (ENV=production)")
		}
		if cfg.Storage.BronzeURI == "" || cfg.Storage.LandingURI == "" {
			return nil, fmt.Errorf("BUCKET_LANDING and BUCKET_BRONZE must be set in production (ENV=production)")
		}
	}

	return cfg, nil
}

func (c *Config) parseNumbers() error {
	if v := os.Getenv("CATALOG_STATEMENT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CATALOG_STATEMENT_TIMEOUT: %w", err)
		}
		c.Catalog.StatementTimeout = d
	}
	if v := os.Getenv("CATALOG_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CATALOG_MAX_CONNS: %w", err)
		}
		c.Catalog.MaxConns = n
	}
	if v := os.Getenv("MAX_PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("MAX_PARALLEL must be a positive integer, got %q", v)
		}
		c.Pipeline.MaxParallel = n
	}
	if v := os.Getenv("TASK_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("TASK_RETRIES must be a non-negative integer, got %q", v)
		}
		c.Pipeline.RetryCount = n
	}
	if v := os.Getenv("TASK_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TASK_RETRY_DELAY: %w", err)
		}
		c.Pipeline.RetryDelay = d
	}
	if v := os.Getenv("DRIVE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			return fmt.Errorf("DRIVE_RPS must be a positive number, got %q", v)
		}
		c.Ingest.DriveRPS = f
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Catalog.Driver == "" {
		c.Catalog.Driver = "flightsql"
	}
	if c.Catalog.Name == "" {
		c.Catalog.Name = "nessie_catalog"
	}
	if c.Catalog.Source == "" {
		c.Catalog.Source = "bronze"
	}
	if c.Catalog.MainRef == "" {
		c.Catalog.MainRef = "main"
	}
	if c.Catalog.TableMode == "" {
		c.Catalog.TableMode = "projection"
	}
	if c.Catalog.MaxConns <= 0 {
		c.Catalog.MaxConns = 4
	}
	if c.Ingest.DriveRPS <= 0 {
		c.Ingest.DriveRPS = 8
	}
	if c.Ingest.ParquetCodec == "" {
		c.Ingest.ParquetCodec = "SNAPPY"
	}
	if c.Pipeline.DatasetsFile == "" {
		c.Pipeline.DatasetsFile = "datasets.yaml"
	}
	if c.Pipeline.BranchPrefix == "" {
		c.Pipeline.BranchPrefix = "dev_"
	}
	if c.Pipeline.MaxParallel == 0 {
		c.Pipeline.MaxParallel = 4
	}
	if c.Pipeline.RetryCount < 0 {
		c.Pipeline.RetryCount = 1
	}
	if c.Pipeline.RetryDelay == 0 {
		c.Pipeline.RetryDelay = 5 * time.Minute
	}
	if c.Pipeline.Schedule == "" {
		c.Pipeline.Schedule = "@daily"
	}
	if c.MetaDBPath == "" {
		c.MetaDBPath = "wap_runs.sqlite"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// bucketURI accepts either a bare bucket name (taken as GCS) or a full URI.
func bucketURI(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.Contains(v, "://") {
		return v
	}
	return "gs://" + v
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
