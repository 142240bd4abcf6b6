package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"lake-wap/internal/ddl"
	"lake-wap/internal/domain"
)

// Compile-time check.
var _ domain.Converter = (*DuckDBConverter)(nil)

var parquetCodecs = map[string]bool{
	"SNAPPY":       true,
	"ZSTD":         true,
	"GZIP":         true,
	"LZ4":          true,
	"UNCOMPRESSED": true,
}

// DuckDBConverter converts CSV files to Parquet with an embedded DuckDB.
type DuckDBConverter struct {
	db         *sql.DB
	codec      string
	allVarchar bool
}

// OpenDuckDB opens an in-memory DuckDB database.
func OpenDuckDB() (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}

// NewDuckDBConverter creates a converter. allVarchar disables type detection,
// which keeps dirty files ingestible at the cost of typing everything as VARCHAR.
func NewDuckDBConverter(db *sql.DB, codec string, allVarchar bool) (*DuckDBConverter, error) {
	codec = strings.ToUpper(strings.TrimSpace(codec))
	if codec == "" {
		codec = "SNAPPY"
	}
	if !parquetCodecs[codec] {
		return nil, domain.ErrValidation("unsupported parquet codec %q", codec)
	}
	return &DuckDBConverter{db: db, codec: codec, allVarchar: allVarchar}, nil
}

// Convert writes srcPath (CSV) to dstPath (Parquet).
func (c *DuckDBConverter) Convert(ctx context.Context, srcPath, dstPath string) error {
	if srcPath == "" || dstPath == "" {
		return domain.ErrValidation("source and destination paths are required")
	}
	q := fmt.Sprintf(
		"COPY (SELECT * FROM read_csv_auto(%s, auto_detect=TRUE, all_varchar=%t)) TO %s (FORMAT 'PARQUET', CODEC '%s')",
		ddl.QuoteLiteral(srcPath), c.allVarchar, ddl.QuoteLiteral(dstPath), c.codec,
	)
	if _, err := c.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("convert %s to parquet: %w", srcPath, err)
	}
	return nil
}

// Validate returns the number of rows in a Parquet file and fails when it has none.
func (c *DuckDBConverter) Validate(ctx context.Context, path string) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT count(*) FROM read_parquet(%s)", ddl.QuoteLiteral(path))
	if err := c.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	if n == 0 {
		return 0, domain.ErrValidation("converted file %s has no rows", path)
	}
	return n, nil
}
