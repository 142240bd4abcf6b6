// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"lake-wap/internal/domain"
)

// === Catalog Fake ===

var (
	quotedRef  = regexp.MustCompile(`"([^"]+)"`)
	tableIdent = regexp.MustCompile(`^(?:CREATE TABLE IF NOT EXISTS|ALTER TABLE) [A-Za-z_][A-Za-z0-9_]*\.([A-Za-z_][A-Za-z0-9_]*)`)
)

// FakeCatalog is an in-memory catalog engine implementing domain.CatalogGateway.
// It understands the branch, table and merge statements the pipeline issues,
// remembers references and tables, and records every Execute call.
//
// Like a real engine session, each Execute call starts on the main reference and
// USE REFERENCE changes it for the statements after it in the same call only.
type FakeCatalog struct {
	// FailFn, when set, is consulted before each statement; a non-nil error fails it.
	FailFn func(stmt string) error
	// DuplicateTableErrors makes CREATE TABLE IF NOT EXISTS report "already exists"
	// for existing tables instead of succeeding silently.
	DuplicateTableErrors bool

	mu       sync.Mutex
	calls    [][]string
	branches map[string]bool
	tables   map[string]map[string]string // ref -> dataset -> creating statement
	merges   []domain.MergeOperation
	refresh  []string
}

// NewFakeCatalog returns a FakeCatalog holding only the main reference.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		branches: map[string]bool{domain.DefaultMainRef: true},
		tables:   map[string]map[string]string{},
	}
}

// Execute implements domain.CatalogGateway.
func (f *FakeCatalog) Execute(ctx context.Context, stmts ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string(nil), stmts...))
	ref := domain.DefaultMainRef
	for i, stmt := range stmts {
		if err := f.apply(stmt, &ref); err != nil {
			return &domain.StatementError{Index: i, Statement: stmt, Err: err}
		}
	}
	return nil
}

func (f *FakeCatalog) apply(stmt string, ref *string) error {
	if f.FailFn != nil {
		if err := f.FailFn(stmt); err != nil {
			return err
		}
	}

	refs := quotedRef.FindAllStringSubmatch(stmt, -1)
	switch {
	case strings.HasPrefix(stmt, "CREATE BRANCH "):
		name, from := refs[0][1], refs[1][1]
		if !f.branches[from] {
			return fmt.Errorf("Reference %s not found", from)
		}
		if f.branches[name] {
			return fmt.Errorf("Reference %s already exists", name)
		}
		f.branches[name] = true
		f.tables[name] = copyTables(f.tables[from])
	case strings.HasPrefix(stmt, "USE REFERENCE "):
		name := refs[0][1]
		if !f.branches[name] {
			return fmt.Errorf("Reference %s not found", name)
		}
		*ref = name
	case strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS "):
		dataset := tableIdent.FindStringSubmatch(stmt)[1]
		if f.tables[*ref] == nil {
			f.tables[*ref] = map[string]string{}
		}
		if _, ok := f.tables[*ref][dataset]; ok {
			if f.DuplicateTableErrors {
				return fmt.Errorf("A table or view with given name [%s] already exists", dataset)
			}
			return nil
		}
		f.tables[*ref][dataset] = stmt
	case strings.HasPrefix(stmt, "ALTER TABLE "):
		dataset := tableIdent.FindStringSubmatch(stmt)[1]
		if _, ok := f.tables[*ref][dataset]; !ok {
			return fmt.Errorf("Table [%s] not found", dataset)
		}
		f.refresh = append(f.refresh, *ref+"/"+dataset)
	case strings.HasPrefix(stmt, "MERGE BRANCH "):
		src, dst := refs[0][1], refs[1][1]
		if !f.branches[src] || !f.branches[dst] {
			return fmt.Errorf("Reference %s or %s not found", src, dst)
		}
		if f.tables[dst] == nil {
			f.tables[dst] = map[string]string{}
		}
		for k, v := range f.tables[src] {
			f.tables[dst][k] = v
		}
		f.merges = append(f.merges, domain.MergeOperation{Source: src, Target: dst})
	case strings.HasPrefix(stmt, "DROP BRANCH "):
		name := refs[0][1]
		if !f.branches[name] {
			return fmt.Errorf("Reference %s not found", name)
		}
		delete(f.branches, name)
		delete(f.tables, name)
	default:
		return fmt.Errorf("unsupported statement: %s", stmt)
	}
	return nil
}

func copyTables(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Calls returns the statement lists of every Execute call, in order.
func (f *FakeCatalog) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Statements returns every statement received, flattened across calls.
func (f *FakeCatalog) Statements() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c...)
	}
	return out
}

// CountPrefix returns how many received statements start with prefix.
func (f *FakeCatalog) CountPrefix(prefix string) int {
	n := 0
	for _, s := range f.Statements() {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

// HasBranch reports whether the reference exists.
func (f *FakeCatalog) HasBranch(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branches[name]
}

// Table returns the statement that created dataset on ref.
func (f *FakeCatalog) Table(ref, dataset string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stmt, ok := f.tables[ref][dataset]
	return stmt, ok
}

// Merges returns the merges applied so far.
func (f *FakeCatalog) Merges() []domain.MergeOperation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.MergeOperation(nil), f.merges...)
}

// Refreshes returns "ref/dataset" for every metadata refresh applied.
func (f *FakeCatalog) Refreshes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refresh...)
}

var _ domain.CatalogGateway = (*FakeCatalog)(nil)

// === File Source Mock ===

// MockFileSource implements domain.FileSource for testing.
type MockFileSource struct {
	ListFn func(ctx context.Context, folderID, suffix string) ([]domain.SourceFile, error)
	// Files maps file IDs to contents served by Fetch when FetchFn is nil.
	Files   map[string]string
	FetchFn func(ctx context.Context, fileID string, w io.Writer) error
}

// List implements the interface method for testing.
func (m *MockFileSource) List(ctx context.Context, folderID, suffix string) ([]domain.SourceFile, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, folderID, suffix)
	}
	panic("unexpected call to MockFileSource.List")
}

// Fetch implements the interface method for testing.
func (m *MockFileSource) Fetch(ctx context.Context, fileID string, w io.Writer) error {
	if m.FetchFn != nil {
		return m.FetchFn(ctx, fileID, w)
	}
	body, ok := m.Files[fileID]
	if !ok {
		panic("unexpected call to MockFileSource.Fetch for " + fileID)
	}
	_, err := io.Copy(w, bytes.NewBufferString(body))
	return err
}

var _ domain.FileSource = (*MockFileSource)(nil)

// === Object Store Mock ===

// MockObjectStore is an in-memory domain.ObjectStore.
type MockObjectStore struct {
	BucketName string
	SchemeName string
	KeyPrefix  string
	UploadFn   func(ctx context.Context, key, localPath string) error

	mu      sync.Mutex
	Objects map[string]string // key -> local path it was uploaded from
	Uploads []string          // keys in upload order
}

// Exists implements the interface method for testing.
func (m *MockObjectStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Objects[key]
	return ok, nil
}

// Upload implements the interface method for testing.
func (m *MockObjectStore) Upload(ctx context.Context, key, localPath string) error {
	if m.UploadFn != nil {
		if err := m.UploadFn(ctx, key, localPath); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Objects == nil {
		m.Objects = map[string]string{}
	}
	m.Objects[key] = localPath
	m.Uploads = append(m.Uploads, key)
	return nil
}

// Bucket implements the interface method for testing.
func (m *MockObjectStore) Bucket() string { return m.BucketName }

// Scheme implements the interface method for testing.
func (m *MockObjectStore) Scheme() string {
	if m.SchemeName == "" {
		return "gs"
	}
	return m.SchemeName
}

// Prefix implements the interface method for testing.
func (m *MockObjectStore) Prefix() string { return m.KeyPrefix }

var _ domain.ObjectStore = (*MockObjectStore)(nil)

// === Converter Mock ===

// MockConverter implements domain.Converter for testing.
type MockConverter struct {
	ConvertFn  func(ctx context.Context, srcPath, dstPath string) error
	ValidateFn func(ctx context.Context, path string) (int64, error)
}

// Convert implements the interface method for testing.
func (m *MockConverter) Convert(ctx context.Context, srcPath, dstPath string) error {
	if m.ConvertFn != nil {
		return m.ConvertFn(ctx, srcPath, dstPath)
	}
	panic("unexpected call to MockConverter.Convert")
}

// Validate implements the interface method for testing.
func (m *MockConverter) Validate(ctx context.Context, path string) (int64, error) {
	if m.ValidateFn != nil {
		return m.ValidateFn(ctx, path)
	}
	panic("unexpected call to MockConverter.Validate")
}

var _ domain.Converter = (*MockConverter)(nil)

// === Dataset Ingester Mock ===

// MockIngester implements domain.DatasetIngester for testing.
type MockIngester struct {
	IngestFn func(ctx context.Context, dataset, folderID string) (*domain.StagedDataset, error)
}

// Ingest implements the interface method for testing.
func (m *MockIngester) Ingest(ctx context.Context, dataset, folderID string) (*domain.StagedDataset, error) {
	if m.IngestFn != nil {
		return m.IngestFn(ctx, dataset, folderID)
	}
	panic("unexpected call to MockIngester.Ingest")
}

var _ domain.DatasetIngester = (*MockIngester)(nil)

// === Run Repository Mock ===

// MockRunRepo implements domain.RunRepository for testing.
type MockRunRepo struct {
	CreateRunFn             func(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error)
	GetRunByIDFn            func(ctx context.Context, id string) (*domain.PipelineRun, error)
	GetLatestRunByBranchFn  func(ctx context.Context, branch string) (*domain.PipelineRun, error)
	ListRunsFn              func(ctx context.Context, limit int) ([]domain.PipelineRun, error)
	CountActiveRunsFn       func(ctx context.Context, branch string) (int64, error)
	UpdateRunStateFn        func(ctx context.Context, id, state string) error
	UpdateRunFinishedFn     func(ctx context.Context, id, state string, errorMsg *string) error
	CreateTaskRunFn         func(ctx context.Context, tr *domain.TaskRun) (*domain.TaskRun, error)
	ListTaskRunsByRunFn     func(ctx context.Context, runID string) ([]domain.TaskRun, error)
	UpdateTaskRunStartedFn  func(ctx context.Context, id string) error
	UpdateTaskRunFinishedFn func(ctx context.Context, id, status, outcome string, attempts int, errorMsg *string) error
}

// CreateRun implements the interface method for testing.
func (m *MockRunRepo) CreateRun(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error) {
	if m.CreateRunFn != nil {
		return m.CreateRunFn(ctx, run)
	}
	panic("unexpected call to MockRunRepo.CreateRun")
}

// GetRunByID implements the interface method for testing.
func (m *MockRunRepo) GetRunByID(ctx context.Context, id string) (*domain.PipelineRun, error) {
	if m.GetRunByIDFn != nil {
		return m.GetRunByIDFn(ctx, id)
	}
	panic("unexpected call to MockRunRepo.GetRunByID")
}

// GetLatestRunByBranch implements the interface method for testing.
func (m *MockRunRepo) GetLatestRunByBranch(ctx context.Context, branch string) (*domain.PipelineRun, error) {
	if m.GetLatestRunByBranchFn != nil {
		return m.GetLatestRunByBranchFn(ctx, branch)
	}
	panic("unexpected call to MockRunRepo.GetLatestRunByBranch")
}

// ListRuns implements the interface method for testing.
func (m *MockRunRepo) ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	if m.ListRunsFn != nil {
		return m.ListRunsFn(ctx, limit)
	}
	panic("unexpected call to MockRunRepo.ListRuns")
}

// CountActiveRuns implements the interface method for testing.
func (m *MockRunRepo) CountActiveRuns(ctx context.Context, branch string) (int64, error) {
	if m.CountActiveRunsFn != nil {
		return m.CountActiveRunsFn(ctx, branch)
	}
	panic("unexpected call to MockRunRepo.CountActiveRuns")
}

// UpdateRunState implements the interface method for testing.
func (m *MockRunRepo) UpdateRunState(ctx context.Context, id, state string) error {
	if m.UpdateRunStateFn != nil {
		return m.UpdateRunStateFn(ctx, id, state)
	}
	panic("unexpected call to MockRunRepo.UpdateRunState")
}

// UpdateRunFinished implements the interface method for testing.
func (m *MockRunRepo) UpdateRunFinished(ctx context.Context, id, state string, errorMsg *string) error {
	if m.UpdateRunFinishedFn != nil {
		return m.UpdateRunFinishedFn(ctx, id, state, errorMsg)
	}
	panic("unexpected call to MockRunRepo.UpdateRunFinished")
}

// CreateTaskRun implements the interface method for testing.
func (m *MockRunRepo) CreateTaskRun(ctx context.Context, tr *domain.TaskRun) (*domain.TaskRun, error) {
	if m.CreateTaskRunFn != nil {
		return m.CreateTaskRunFn(ctx, tr)
	}
	panic("unexpected call to MockRunRepo.CreateTaskRun")
}

// ListTaskRunsByRun implements the interface method for testing.
func (m *MockRunRepo) ListTaskRunsByRun(ctx context.Context, runID string) ([]domain.TaskRun, error) {
	if m.ListTaskRunsByRunFn != nil {
		return m.ListTaskRunsByRunFn(ctx, runID)
	}
	panic("unexpected call to MockRunRepo.ListTaskRunsByRun")
}

// UpdateTaskRunStarted implements the interface method for testing.
func (m *MockRunRepo) UpdateTaskRunStarted(ctx context.Context, id string) error {
	if m.UpdateTaskRunStartedFn != nil {
		return m.UpdateTaskRunStartedFn(ctx, id)
	}
	panic("unexpected call to MockRunRepo.UpdateTaskRunStarted")
}

// UpdateTaskRunFinished implements the interface method for testing.
func (m *MockRunRepo) UpdateTaskRunFinished(ctx context.Context, id, status, outcome string, attempts int, errorMsg *string) error {
	if m.UpdateTaskRunFinishedFn != nil {
		return m.UpdateTaskRunFinishedFn(ctx, id, status, outcome, attempts, errorMsg)
	}
	panic("unexpected call to MockRunRepo.UpdateTaskRunFinished")
}

var _ domain.RunRepository = (*MockRunRepo)(nil)
