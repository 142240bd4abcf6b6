package dataops

import (
	"context"
	"log/slog"

	"lake-wap/internal/ddl"
	"lake-wap/internal/domain"
)

var _ domain.TableEnsurer = (*TableRegistrar)(nil)

// TableRegistrar registers staged datasets as tables on a branch.
type TableRegistrar struct {
	base
}

// NewTableRegistrar creates a TableRegistrar.
func NewTableRegistrar(gw domain.CatalogGateway, opts Options, logger *slog.Logger) *TableRegistrar {
	return &TableRegistrar{base: newBase(gw, opts, logger)}
}

// EnsureTable creates the table for reg on reg.Branch if it does not exist.
//
// The reference switch and the CREATE are sent in one gateway call so they share
// a session. When the table already exists and its format keeps no transactional
// metadata, the table's metadata is refreshed and OutcomeRefreshed is returned.
func (r *TableRegistrar) EnsureTable(ctx context.Context, reg domain.TableRegistration) (domain.Outcome, error) {
	log := r.logger.With("branch", reg.Branch, "dataset", reg.Dataset)

	use, err := ddl.UseReference(r.opts.Catalog, reg.Branch)
	if err != nil {
		return "", wrapBuild("ensure_table", reg.Branch, reg.Dataset, err)
	}
	create, err := r.createStatement(reg)
	if err != nil {
		return "", wrapBuild("ensure_table", reg.Branch, reg.Dataset, err)
	}

	err = r.gw.Execute(ctx, use, create)
	if err == nil {
		log.Info("table registered", "typed", reg.Typed(), "columns", len(reg.Columns))
		return domain.OutcomeReady, nil
	}
	if r.opts.Classifier(err) != domain.ErrorClassBenignDuplicate {
		log.Error("ensure table failed", "error", err)
		return "", catalogErr("ensure_table", reg.Branch, reg.Dataset, err)
	}

	if !reg.Format.NeedsRefresh() {
		log.Warn("table already exists", "error", err)
		return domain.OutcomeAlreadyExists, nil
	}

	refresh, err := ddl.RefreshMetadata(r.opts.Catalog, reg.Dataset)
	if err != nil {
		return "", wrapBuild("refresh_metadata", reg.Branch, reg.Dataset, err)
	}
	if err := r.gw.Execute(ctx, use, refresh); err != nil {
		log.Error("refresh metadata failed", "error", err)
		return "", catalogErr("refresh_metadata", reg.Branch, reg.Dataset, err)
	}
	log.Warn("table already exists, metadata refreshed")
	return domain.OutcomeRefreshed, nil
}

func (r *TableRegistrar) createStatement(reg domain.TableRegistration) (string, error) {
	if !reg.Typed() {
		return ddl.CreateTableInferred(r.opts.Catalog, reg.Dataset, r.opts.Source, reg.Bucket, reg.StagedFolder())
	}
	if r.opts.TableMode == TableModeLocation {
		return ddl.CreateTableWithLocation(r.opts.Catalog, reg.Dataset, reg.Columns, reg.Location)
	}
	return ddl.CreateTableAsProjection(r.opts.Catalog, reg.Dataset, r.opts.Source, reg.Bucket, reg.StagedFolder(), reg.Columns)
}
