package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lake-wap/internal/domain"
)

var allVars = []string{
	"CATALOG_DRIVER", "CATALOG_DSN", "CATALOG_NAME", "CATALOG_SOURCE", "CATALOG_MAIN_REF",
	"TABLE_MODE", "CATALOG_STATEMENT_TIMEOUT", "CATALOG_MAX_CONNS",
	"BUCKET_LANDING", "BUCKET_BRONZE", "GOOGLE_APPLICATION_CREDENTIALS",
	"S3_ENDPOINT", "S3_REGION", "S3_KEY_ID", "S3_SECRET", "S3_URL_STYLE",
	"AZURE_STORAGE_ACCOUNT", "AZURE_STORAGE_KEY",
	"DRIVE_CREDENTIALS_FILE", "DRIVE_RPS", "PARQUET_CODEC", "CSV_ALL_VARCHAR", "INGEST_TEMP_DIR",
	"DATASETS_FILE", "BRANCH_PREFIX", "MAX_PARALLEL", "TASK_RETRIES", "TASK_RETRY_DELAY",
	"DROP_BRANCH_AFTER_MERGE", "SCHEDULE",
	"META_DB_PATH", "LISTEN_ADDR", "LOG_LEVEL", "ENV",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allVars {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "flightsql", cfg.Catalog.Driver)
	assert.Equal(t, "nessie_catalog", cfg.Catalog.Name)
	assert.Equal(t, "bronze", cfg.Catalog.Source)
	assert.Equal(t, "main", cfg.Catalog.MainRef)
	assert.Equal(t, "projection", cfg.Catalog.TableMode)
	assert.Zero(t, cfg.Catalog.StatementTimeout)
	assert.Equal(t, 4, cfg.Catalog.MaxConns)

	assert.Equal(t, "SNAPPY", cfg.Ingest.ParquetCodec)
	assert.False(t, cfg.Ingest.AllVarchar)
	assert.InDelta(t, 8.0, cfg.Ingest.DriveRPS, 0.001)

	assert.Equal(t, "datasets.yaml", cfg.Pipeline.DatasetsFile)
	assert.Equal(t, "dev_", cfg.Pipeline.BranchPrefix)
	assert.Equal(t, 4, cfg.Pipeline.MaxParallel)
	assert.Equal(t, 1, cfg.Pipeline.RetryCount)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.RetryDelay)
	assert.False(t, cfg.Pipeline.DropBranchAfterMerge)
	assert.Equal(t, "@daily", cfg.Pipeline.Schedule)

	assert.Equal(t, "wap_runs.sqlite", cfg.MetaDBPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Len(t, cfg.Warnings, 2)
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("CATALOG_DSN", "flightsql://trino:443?username=etl")
	t.Setenv("CATALOG_NAME", "lake")
	t.Setenv("TABLE_MODE", "LOCATION")
	t.Setenv("CATALOG_STATEMENT_TIMEOUT", "90s")
	t.Setenv("BUCKET_LANDING", "mvp-landing")
	t.Setenv("BUCKET_BRONZE", "s3://mvp-bronze")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/keys/sa.json")
	t.Setenv("PARQUET_CODEC", "zstd")
	t.Setenv("CSV_ALL_VARCHAR", "true")
	t.Setenv("MAX_PARALLEL", "2")
	t.Setenv("TASK_RETRIES", "0")
	t.Setenv("TASK_RETRY_DELAY", "30s")
	t.Setenv("DROP_BRANCH_AFTER_MERGE", "yes")
	t.Setenv("DRIVE_RPS", "2.5")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "lake", cfg.Catalog.Name)
	assert.Equal(t, "location", cfg.Catalog.TableMode)
	assert.Equal(t, 90*time.Second, cfg.Catalog.StatementTimeout)
	assert.Equal(t, "gs://mvp-landing", cfg.Storage.LandingURI)
	assert.Equal(t, "s3://mvp-bronze", cfg.Storage.BronzeURI)
	assert.Equal(t, "/keys/sa.json", cfg.Ingest.DriveKeyFile, "drive falls back to the GCS key")
	assert.Equal(t, "ZSTD", cfg.Ingest.ParquetCodec)
	assert.True(t, cfg.Ingest.AllVarchar)
	assert.Equal(t, 2, cfg.Pipeline.MaxParallel)
	assert.Equal(t, 0, cfg.Pipeline.RetryCount)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.RetryDelay)
	assert.True(t, cfg.Pipeline.DropBranchAfterMerge)
	assert.InDelta(t, 2.5, cfg.Ingest.DriveRPS, 0.001)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"table_mode", "TABLE_MODE", "external", "TABLE_MODE"},
		{"timeout", "CATALOG_STATEMENT_TIMEOUT", "soon", "CATALOG_STATEMENT_TIMEOUT"},
		{"parallel_zero", "MAX_PARALLEL", "0", "MAX_PARALLEL"},
		{"retries_negative", "TASK_RETRIES", "-2", "TASK_RETRIES"},
		{"retry_delay", "TASK_RETRY_DELAY", "5", "TASK_RETRY_DELAY"},
		{"drive_rps_text", "DRIVE_RPS", "fast", "DRIVE_RPS"},
		{"drive_rps_zero", "DRIVE_RPS", "0", "DRIVE_RPS"},
		{"drive_rps_negative", "DRIVE_RPS", "-1.5", "DRIVE_RPS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromEnv_Production(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CATALOG_DSN")

	t.Setenv("CATALOG_DSN", "flightsql://trino:443")
	_, err = LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUCKET_LANDING")

	t.Setenv("BUCKET_LANDING", "gs://landing")
	t.Setenv("BUCKET_BRONZE", "gs://bronze")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.in}
			assert.Equal(t, tt.want, cfg.SlogLevel())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")

	content := `# Comment line
CATALOG_DSN=flightsql://from-dotenv
export CATALOG_NAME="quoted_catalog"
BUCKET_BRONZE='single-quoted'

BRANCH_PREFIX=should-not-override
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	t.Setenv("CATALOG_DSN", "")
	t.Setenv("CATALOG_NAME", "")
	t.Setenv("BUCKET_BRONZE", "")
	t.Setenv("BRANCH_PREFIX", "existing_")

	require.NoError(t, LoadDotEnv(envFile))

	assert.Equal(t, "flightsql://from-dotenv", os.Getenv("CATALOG_DSN"))
	assert.Equal(t, "quoted_catalog", os.Getenv("CATALOG_NAME"))
	assert.Equal(t, "single-quoted", os.Getenv("BUCKET_BRONZE"))
	assert.Equal(t, "existing_", os.Getenv("BRANCH_PREFIX"))
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	assert.NoError(t, LoadDotEnv("/nonexistent/.env"))
}

func TestStripQuotes(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`hello`, "hello"},
		{`"mismatched'`, `"mismatched'`},
		{`""`, ""},
		{`"`, `"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, stripQuotes(tt.input))
		})
	}
}

// === Dataset manifest ===

func TestParseDatasets(t *testing.T) {
	t.Setenv("FOLDER_ID_CLIMA", "folder-clima")
	t.Setenv("FOLDER_ID_FROTA", "")

	manifest := `
datasets:
  - name: clima_pluviometria
    folder_id_env: FOLDER_ID_CLIMA
    schema: "estacao VARCHAR, chuva DOUBLE"
  - name: licenciamento_frota
    folder_id_env: FOLDER_ID_FROTA
  - name: estacoes_clima
    folder_id: literal-folder
    format: PARQUET
`
	specs, warnings, err := ParseDatasets([]byte(manifest))
	require.NoError(t, err)

	require.Len(t, specs, 2)
	assert.Equal(t, domain.DatasetSpec{
		Name:     "clima_pluviometria",
		FolderID: "folder-clima",
		Schema:   "estacao VARCHAR, chuva DOUBLE",
		Format:   domain.TableFormatIceberg,
	}, specs[0])
	assert.Equal(t, "literal-folder", specs[1].FolderID)
	assert.Equal(t, domain.TableFormatParquet, specs[1].Format)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "licenciamento_frota")
	assert.Contains(t, warnings[0], "FOLDER_ID_FROTA")
}

func TestParseDatasets_Errors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{"bad_yaml", "datasets: [", "parse dataset manifest"},
		{"missing_name", "datasets:\n  - folder_id: x\n", "name is required"},
		{"duplicate", "datasets:\n  - name: a\n    folder_id: x\n  - name: a\n    folder_id: y\n", "listed twice"},
		{"bad_format", "datasets:\n  - name: a\n    folder_id: x\n    format: delta\n", "unsupported table format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseDatasets([]byte(tt.manifest))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDatasets_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datasets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("datasets:\n  - name: reclamacoes_1746\n    folder_id: f\n"), 0o600))

	specs, warnings, err := LoadDatasets(path)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, specs, 1)
	assert.Equal(t, "reclamacoes_1746", specs[0].Name)

	_, _, err = LoadDatasets(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read dataset manifest")
}
