package dataops

import (
	"context"
	"log/slog"

	"lake-wap/internal/ddl"
	"lake-wap/internal/domain"
)

var _ domain.BranchManager = (*BranchController)(nil)

// BranchController creates and drops catalog branches.
type BranchController struct {
	base
}

// NewBranchController creates a BranchController.
func NewBranchController(gw domain.CatalogGateway, opts Options, logger *slog.Logger) *BranchController {
	return &BranchController{base: newBase(gw, opts, logger)}
}

// CreateBranch forks branch from source, or from the main reference when source
// is empty. A branch that already exists is reported as OutcomeAlreadyExists.
func (c *BranchController) CreateBranch(ctx context.Context, branch, source string) (domain.Outcome, error) {
	if source == "" {
		source = c.opts.MainRef
	}
	stmt, err := ddl.CreateBranch(c.opts.Catalog, branch, source)
	if err != nil {
		return "", wrapBuild("create_branch", branch, "", err)
	}

	err = c.gw.Execute(ctx, stmt)
	if err == nil {
		c.logger.Info("branch created", "branch", branch, "from", source)
		return domain.OutcomeReady, nil
	}
	if c.opts.Classifier(err) == domain.ErrorClassBenignDuplicate {
		c.logger.Warn("branch already exists", "branch", branch, "error", err)
		return domain.OutcomeAlreadyExists, nil
	}
	c.logger.Error("create branch failed", "branch", branch, "error", err)
	return "", catalogErr("create_branch", branch, "", err)
}

// DropBranch deletes branch. Every failure is fatal to the call.
func (c *BranchController) DropBranch(ctx context.Context, branch string) error {
	if branch == c.opts.MainRef {
		return domain.ErrValidation("refusing to drop the main reference %q", branch)
	}
	stmt, err := ddl.DropBranch(c.opts.Catalog, branch)
	if err != nil {
		return wrapBuild("drop_branch", branch, "", err)
	}
	if err := c.gw.Execute(ctx, stmt); err != nil {
		return catalogErr("drop_branch", branch, "", err)
	}
	c.logger.Info("branch dropped", "branch", branch)
	return nil
}
