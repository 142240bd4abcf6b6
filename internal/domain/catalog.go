package domain

import (
	"fmt"
	"time"
)

// DefaultMainRef is the reference branches are created from and merged into.
const DefaultMainRef = "main"

// CatalogReference is a named pointer into table-version history.
// Parent is only meaningful at creation time.
type CatalogReference struct {
	Name   string
	Parent string
}

// BranchName derives the working branch for a logical run date, e.g. dev_20250101.
// Re-running the same date always yields the same branch.
func BranchName(prefix string, logicalDate time.Time) string {
	return fmt.Sprintf("%s%s", prefix, logicalDate.UTC().Format("20060102"))
}

// ColumnDef describes a declared table column.
type ColumnDef struct {
	Name string
	Type string
}

// TableFormat is the storage format behind a catalog table.
type TableFormat string

// Table formats.
const (
	// TableFormatIceberg tables commit transactionally; nothing to refresh.
	TableFormatIceberg TableFormat = "iceberg"
	// TableFormatParquet tables are plain file-backed datasets whose metadata must
	// be refreshed explicitly after files change.
	TableFormatParquet TableFormat = "parquet"
)

// ParseTableFormat validates a format name. Empty selects iceberg.
func ParseTableFormat(s string) (TableFormat, error) {
	switch TableFormat(s) {
	case "", TableFormatIceberg:
		return TableFormatIceberg, nil
	case TableFormatParquet:
		return TableFormatParquet, nil
	default:
		return "", ErrValidation("unsupported table format %q (must be 'iceberg' or 'parquet')", s)
	}
}

// NeedsRefresh reports whether the format requires REFRESH METADATA after file changes.
func (f TableFormat) NeedsRefresh() bool {
	return f == TableFormatParquet
}

// TableRegistration binds a dataset to a catalog table on a branch.
// A nil Columns slice selects inferred mode.
type TableRegistration struct {
	Dataset  string
	Branch   string
	Location string // staged location URI, e.g. gs://bucket/clima
	Bucket   string // bucket part of Location, as seen by the engine's storage source
	Folder   string // key prefix of the staged files inside Bucket; empty means Dataset
	Columns  []ColumnDef
	Format   TableFormat
}

// StagedFolder returns the key prefix the staged files live under.
func (r *TableRegistration) StagedFolder() string {
	if r.Folder == "" {
		return r.Dataset
	}
	return r.Folder
}

// Typed reports whether the registration carries an explicit column contract.
func (r *TableRegistration) Typed() bool {
	return r.Columns != nil
}

// StagedDataset points at columnar files written by ingestion.
type StagedDataset struct {
	Dataset string
	Bucket  string
	Prefix  string   // key prefix inside Bucket, including any store prefix
	Files   []string // object keys uploaded in this run
}

// Location returns the URI of the staged prefix.
func (s *StagedDataset) Location(scheme string) string {
	return fmt.Sprintf("%s://%s/%s", scheme, s.Bucket, s.Prefix)
}

// MergeOperation folds one reference's history into another.
type MergeOperation struct {
	Source string
	Target string
}

// Outcome is the non-fatal result of an idempotent catalog operation.
type Outcome string

// Outcomes.
const (
	OutcomeReady         Outcome = "READY"
	OutcomeAlreadyExists Outcome = "ALREADY_EXISTS"
	// OutcomeRefreshed is AlreadyExists followed by a metadata refresh.
	OutcomeRefreshed Outcome = "REFRESHED"
)

// ErrorClass is the classification of a catalog engine error.
type ErrorClass int

// Error classes.
const (
	ErrorClassFatal ErrorClass = iota
	ErrorClassBenignDuplicate
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassBenignDuplicate:
		return "benign_duplicate"
	default:
		return "fatal"
	}
}

// DatasetSpec describes one dataset the pipeline publishes.
type DatasetSpec struct {
	Name     string
	FolderID string      // source folder holding the dataset's files
	Schema   string      // "col TYPE, ..."; empty selects inferred mode
	Format   TableFormat // format of the staged files as seen by the catalog
}
