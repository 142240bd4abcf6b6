// Package dataops implements the branch-isolated publishing protocol: branch
// creation, table registration on a branch, and merging a branch into its target.
package dataops

import (
	"log/slog"

	"lake-wap/internal/domain"
	"lake-wap/internal/engine"
)

// TableMode selects how typed registrations are expressed.
type TableMode string

// Table modes.
const (
	// TableModeProjection creates the table as a CAST projection over the staged files.
	TableModeProjection TableMode = "projection"
	// TableModeLocation declares the columns and points the table at the staged location.
	TableModeLocation TableMode = "location"
)

// ParseTableMode parses a table mode, defaulting to projection.
func ParseTableMode(s string) (TableMode, error) {
	switch TableMode(s) {
	case "", TableModeProjection:
		return TableModeProjection, nil
	case TableModeLocation:
		return TableModeLocation, nil
	default:
		return "", domain.ErrValidation("unknown table mode %q: must be %q or %q", s, TableModeProjection, TableModeLocation)
	}
}

// Defaults for Options.
const (
	DefaultCatalog = "nessie_catalog"
	DefaultSource  = "bronze"
)

// Options configures the catalog operations. Zero values take the defaults.
type Options struct {
	Catalog    string                 // catalog name inside the engine (default nessie_catalog)
	Source     string                 // object-storage source name inside the engine (default bronze)
	MainRef    string                 // reference branches fork from and merge into (default main)
	TableMode  TableMode              // typed registration mode (default projection)
	Classifier domain.ErrorClassifier // default engine.DefaultClassifier
}

func (o Options) withDefaults() Options {
	if o.Catalog == "" {
		o.Catalog = DefaultCatalog
	}
	if o.Source == "" {
		o.Source = DefaultSource
	}
	if o.MainRef == "" {
		o.MainRef = domain.DefaultMainRef
	}
	if o.TableMode == "" {
		o.TableMode = TableModeProjection
	}
	if o.Classifier == nil {
		o.Classifier = engine.DefaultClassifier
	}
	return o
}

type base struct {
	gw     domain.CatalogGateway
	opts   Options
	logger *slog.Logger
}

func newBase(gw domain.CatalogGateway, opts Options, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{gw: gw, opts: opts.withDefaults(), logger: logger}
}

func catalogErr(op, branch, dataset string, err error) error {
	return &domain.CatalogError{Op: op, Branch: branch, Dataset: dataset, Err: err}
}

// wrapBuild reports a statement that could not be built. Nothing reached the engine.
func wrapBuild(op, branch, dataset string, err error) error {
	return catalogErr(op, branch, dataset, domain.ErrValidation("build statement: %v", err))
}
