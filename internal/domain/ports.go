package domain

import (
	"context"
	"io"
)

// CatalogGateway executes statements against the catalog engine.
// Statements passed in one call run in order on a single physical connection
// without an enclosing transaction. Implemented by engine.Gateway.
type CatalogGateway interface {
	Execute(ctx context.Context, stmts ...string) error
}

// ErrorClassifier maps an engine error to an ErrorClass.
type ErrorClassifier func(err error) ErrorClass

// SourceFile is a file listed from the file-sharing source.
type SourceFile struct {
	ID   string
	Name string
}

// FileSource lists and fetches files from the upstream file-sharing service.
// Implemented by drive.Source.
type FileSource interface {
	List(ctx context.Context, folderID, suffix string) ([]SourceFile, error)
	Fetch(ctx context.Context, fileID string, w io.Writer) error
}

// ObjectStore is a bucket in object storage.
// Implemented by storage.GCSStore, storage.S3Store and storage.AzureStore.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Upload(ctx context.Context, key, localPath string) error
	Bucket() string
	Scheme() string
	// Prefix is the key prefix every object is written under; empty for the bucket root.
	Prefix() string
}

// Converter turns a tabular file into a columnar one.
// Implemented by engine.DuckDBConverter.
type Converter interface {
	Convert(ctx context.Context, srcPath, dstPath string) error
	// Validate returns the row count of a columnar file, failing when it is empty.
	Validate(ctx context.Context, path string) (int64, error)
}

// DatasetIngester stages one dataset's files for registration.
// Implemented by ingestion.Service.
type DatasetIngester interface {
	Ingest(ctx context.Context, dataset, folderID string) (*StagedDataset, error)
}

// RunRepository persists pipeline runs and their task runs.
// Implemented by repository.RunRepo.
type RunRepository interface {
	CreateRun(ctx context.Context, run *PipelineRun) (*PipelineRun, error)
	GetRunByID(ctx context.Context, id string) (*PipelineRun, error)
	GetLatestRunByBranch(ctx context.Context, branch string) (*PipelineRun, error)
	ListRuns(ctx context.Context, limit int) ([]PipelineRun, error)
	CountActiveRuns(ctx context.Context, branch string) (int64, error)
	UpdateRunState(ctx context.Context, id, state string) error
	UpdateRunFinished(ctx context.Context, id, state string, errorMsg *string) error

	CreateTaskRun(ctx context.Context, tr *TaskRun) (*TaskRun, error)
	ListTaskRunsByRun(ctx context.Context, runID string) ([]TaskRun, error)
	UpdateTaskRunStarted(ctx context.Context, id string) error
	UpdateTaskRunFinished(ctx context.Context, id, status, outcome string, attempts int, errorMsg *string) error
}

// BranchManager creates and drops catalog branches.
// Implemented by dataops.BranchController.
type BranchManager interface {
	CreateBranch(ctx context.Context, branch, source string) (Outcome, error)
	DropBranch(ctx context.Context, branch string) error
}

// TableEnsurer registers a staged dataset as a table on a branch.
// Implemented by dataops.TableRegistrar.
type TableEnsurer interface {
	EnsureTable(ctx context.Context, reg TableRegistration) (Outcome, error)
}

// BranchPublisher merges a branch into its target reference.
// Implemented by dataops.Publisher.
type BranchPublisher interface {
	Merge(ctx context.Context, branch, target string) (MergeOperation, error)
}
