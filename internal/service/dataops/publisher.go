package dataops

import (
	"context"
	"log/slog"

	"lake-wap/internal/ddl"
	"lake-wap/internal/domain"
)

var _ domain.BranchPublisher = (*Publisher)(nil)

// Publisher merges branches into their target reference.
type Publisher struct {
	base
}

// NewPublisher creates a Publisher.
func NewPublisher(gw domain.CatalogGateway, opts Options, logger *slog.Logger) *Publisher {
	return &Publisher{base: newBase(gw, opts, logger)}
}

// Merge folds branch into target, or into the main reference when target is
// empty. Errors are never classified: every failure is fatal.
func (p *Publisher) Merge(ctx context.Context, branch, target string) (domain.MergeOperation, error) {
	if target == "" {
		target = p.opts.MainRef
	}
	op := domain.MergeOperation{Source: branch, Target: target}

	stmt, err := ddl.MergeBranch(p.opts.Catalog, branch, target)
	if err != nil {
		return op, wrapBuild("merge_branch", branch, "", err)
	}
	if err := p.gw.Execute(ctx, stmt); err != nil {
		p.logger.Error("merge failed", "branch", branch, "target", target, "error", err)
		return op, catalogErr("merge_branch", branch, "", err)
	}
	p.logger.Info("branch merged", "branch", branch, "target", target)
	return op, nil
}
