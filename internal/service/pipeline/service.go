package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lake-wap/internal/domain"
)

// Options configures a Service. Zero values fall back to the defaults below,
// except RetryCount where zero means no retries.
type Options struct {
	BranchPrefix         string
	TargetRef            string
	MaxParallel          int
	RetryCount           int
	RetryDelay           time.Duration
	DropBranchAfterMerge bool
	StorageScheme        string // scheme of staged locations, e.g. gs
}

// Defaults.
const (
	DefaultBranchPrefix  = "dev_"
	DefaultMaxParallel   = 4
	DefaultRetryCount    = 1
	DefaultRetryDelay    = 5 * time.Minute
	DefaultStorageScheme = "gs"
)

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		BranchPrefix:  DefaultBranchPrefix,
		TargetRef:     domain.DefaultMainRef,
		MaxParallel:   DefaultMaxParallel,
		RetryCount:    DefaultRetryCount,
		RetryDelay:    DefaultRetryDelay,
		StorageScheme: DefaultStorageScheme,
	}
}

func (o Options) withDefaults() Options {
	if o.BranchPrefix == "" {
		o.BranchPrefix = DefaultBranchPrefix
	}
	if o.TargetRef == "" {
		o.TargetRef = domain.DefaultMainRef
	}
	if o.MaxParallel <= 0 {
		o.MaxParallel = DefaultMaxParallel
	}
	if o.RetryCount < 0 {
		o.RetryCount = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.StorageScheme == "" {
		o.StorageScheme = DefaultStorageScheme
	}
	return o
}

// Service triggers and executes publishing runs.
type Service struct {
	runs      domain.RunRepository
	branches  domain.BranchManager
	tables    domain.TableEnsurer
	publisher domain.BranchPublisher
	ingester  domain.DatasetIngester
	datasets  []domain.DatasetSpec
	opts      Options
	logger    *slog.Logger

	triggerMu sync.Mutex
	wg        sync.WaitGroup
}

// NewService creates a new Service over the configured datasets.
func NewService(
	runs domain.RunRepository,
	branches domain.BranchManager,
	tables domain.TableEnsurer,
	publisher domain.BranchPublisher,
	ingester domain.DatasetIngester,
	datasets []domain.DatasetSpec,
	opts Options,
	logger *slog.Logger,
) *Service {
	return &Service{
		runs:      runs,
		branches:  branches,
		tables:    tables,
		publisher: publisher,
		ingester:  ingester,
		datasets:  datasets,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Datasets returns the configured datasets.
func (s *Service) Datasets() []domain.DatasetSpec {
	return s.datasets
}

// TriggerRun starts a run for the request's logical date in the background and
// returns it in the CREATED state.
//
// When the date's branch has already been published the existing run is
// returned and nothing executes, unless Force is set. A second run on a branch
// with a run still in flight is rejected with a ConflictError.
func (s *Service) TriggerRun(ctx context.Context, req domain.TriggerRunRequest) (*domain.PipelineRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	selected, err := s.selectDatasets(req.Datasets)
	if err != nil {
		return nil, err
	}

	branch := domain.BranchName(s.opts.BranchPrefix, req.LogicalDate)
	logger := s.logger.With("branch", branch)

	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()

	latest, err := s.runs.GetLatestRunByBranch(ctx, branch)
	var notFound *domain.NotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	if latest != nil && latest.State == domain.RunStatePublished && !req.Force {
		logger.Info("branch already published, not re-running", "run_id", latest.ID)
		return latest, nil
	}

	active, err := s.runs.CountActiveRuns(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("count active runs: %w", err)
	}
	if active > 0 {
		return nil, domain.ErrConflict("branch %q already has %d active run(s)", branch, active)
	}

	tasks := PlanTasks(selected, s.opts.RetryCount, s.opts.DropBranchAfterMerge)
	levels, err := ResolveExecutionOrder(tasks)
	if err != nil {
		return nil, err
	}

	run, err := s.runs.CreateRun(ctx, &domain.PipelineRun{
		Branch:      branch,
		TargetRef:   s.opts.TargetRef,
		LogicalDate: req.LogicalDate,
		State:       domain.RunStateCreated,
		TriggerType: req.TriggerType,
	})
	if err != nil {
		return nil, err
	}

	taskRunIDs := make(map[string]string, len(tasks))
	for _, task := range tasks {
		tr, err := s.runs.CreateTaskRun(ctx, &domain.TaskRun{
			RunID:    run.ID,
			TaskName: task.Name,
			Dataset:  task.Dataset,
			Status:   domain.TaskRunStatusPending,
		})
		if err != nil {
			msg := fmt.Sprintf("create task run: %v", err)
			_ = s.runs.UpdateRunFinished(ctx, run.ID, domain.RunStateFailed, &msg)
			return nil, fmt.Errorf("create task run %s: %w", task.Name, err)
		}
		taskRunIDs[task.Name] = tr.ID
	}

	specs := make(map[string]domain.DatasetSpec, len(selected))
	for _, ds := range selected {
		specs[ds.Name] = ds
	}

	logger.Info("run triggered", "run_id", run.ID, "datasets", len(selected), "trigger", req.TriggerType)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.executeRun(context.WithoutCancel(ctx), &execution{
			run:        run,
			tasks:      tasks,
			levels:     levels,
			specs:      specs,
			taskRunIDs: taskRunIDs,
		})
	}()

	return run, nil
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// GetRun returns a run by ID.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	return s.runs.GetRunByID(ctx, runID)
}

// ListRuns returns the most recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.runs.ListRuns(ctx, limit)
}

// ListTaskRuns returns the task runs of a run.
func (s *Service) ListTaskRuns(ctx context.Context, runID string) ([]domain.TaskRun, error) {
	if _, err := s.runs.GetRunByID(ctx, runID); err != nil {
		return nil, err
	}
	return s.runs.ListTaskRunsByRun(ctx, runID)
}

func (s *Service) selectDatasets(names []string) ([]domain.DatasetSpec, error) {
	if len(s.datasets) == 0 {
		return nil, domain.ErrValidation("no datasets configured")
	}
	if len(names) == 0 {
		return s.datasets, nil
	}

	byName := make(map[string]domain.DatasetSpec, len(s.datasets))
	for _, ds := range s.datasets {
		byName[ds.Name] = ds
	}
	selected := make([]domain.DatasetSpec, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		ds, ok := byName[name]
		if !ok {
			return nil, domain.ErrValidation("unknown dataset %q", name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		selected = append(selected, ds)
	}
	return selected, nil
}
