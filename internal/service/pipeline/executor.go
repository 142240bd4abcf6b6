package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lake-wap/internal/ddl"
	"lake-wap/internal/domain"
)

// execution is the in-memory state of one run while it executes.
type execution struct {
	run        *domain.PipelineRun
	tasks      []domain.Task
	levels     [][]string
	specs      map[string]domain.DatasetSpec
	taskRunIDs map[string]string

	mu       sync.Mutex
	status   map[string]string // task name → final status
	staged   map[string]*domain.StagedDataset
	failures []string
	state    string
}

func (e *execution) setStatus(name, status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status[name] = status
}

func (e *execution) depsSucceeded(task domain.Task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, dep := range task.DependsOn {
		if e.status[dep] != domain.TaskRunStatusSuccess {
			return false
		}
	}
	return true
}

var stateOrder = map[string]int{
	domain.RunStateCreated:       0,
	domain.RunStateBranchReady:   1,
	domain.RunStateRegistering:   2,
	domain.RunStateAllRegistered: 3,
}

// executeRun runs the task DAG level by level. Tasks of a level run in
// parallel up to MaxParallel; a task whose dependencies did not all succeed is
// skipped, so merge_branch never runs after a failed registration.
func (s *Service) executeRun(ctx context.Context, e *execution) {
	logger := s.logger.With("run_id", e.run.ID, "branch", e.run.Branch)
	e.status = make(map[string]string, len(e.tasks))
	e.staged = make(map[string]*domain.StagedDataset, len(e.specs))
	e.state = domain.RunStateCreated

	defer func() {
		if r := recover(); r != nil {
			errMsg := fmt.Sprintf("panic: %v", r)
			logger.Error("pipeline run panicked", "error", errMsg)
			_ = s.runs.UpdateRunFinished(ctx, e.run.ID, domain.RunStateFailed, &errMsg)
		}
	}()

	taskByName := make(map[string]domain.Task, len(e.tasks))
	for _, t := range e.tasks {
		taskByName[t.Name] = t
	}

	for _, level := range e.levels {
		var g errgroup.Group
		g.SetLimit(s.opts.MaxParallel)
		for _, name := range level {
			task := taskByName[name]
			g.Go(func() error {
				s.runTask(ctx, e, task, logger)
				return nil
			})
		}
		_ = g.Wait()
	}

	s.finishRun(ctx, e, logger)
}

func (s *Service) finishRun(ctx context.Context, e *execution, logger *slog.Logger) {
	if e.status[TaskMerge] == domain.TaskRunStatusSuccess {
		if err := s.runs.UpdateRunFinished(ctx, e.run.ID, domain.RunStatePublished, nil); err != nil {
			logger.Error("failed to record run finished", "error", err)
		}
		logger.Info("run published", "target", e.run.TargetRef)
		return
	}

	sort.Strings(e.failures)
	errMsg := "one or more tasks failed: " + strings.Join(e.failures, "; ")
	if len(e.failures) == 0 {
		errMsg = "merge did not run"
	}
	if err := s.runs.UpdateRunFinished(ctx, e.run.ID, domain.RunStateFailed, &errMsg); err != nil {
		logger.Error("failed to record run finished", "error", err)
	}
	logger.Error("run failed, branch not published", "error", errMsg)
}

// advance moves the run forward to state; transitions never go backwards.
func (s *Service) advance(ctx context.Context, e *execution, state string, logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stateOrder[state] <= stateOrder[e.state] {
		return
	}
	e.state = state
	if err := s.runs.UpdateRunState(ctx, e.run.ID, state); err != nil {
		logger.Warn("failed to record run state", "state", state, "error", err)
	}
}

// runTask executes one task with retries and records its task run.
func (s *Service) runTask(ctx context.Context, e *execution, task domain.Task, logger *slog.Logger) {
	logger = logger.With("task", task.Name)
	if task.Dataset != "" {
		logger = logger.With("dataset", task.Dataset)
	}
	trID := e.taskRunIDs[task.Name]

	if !e.depsSucceeded(task) {
		e.setStatus(task.Name, domain.TaskRunStatusSkipped)
		_ = s.runs.UpdateTaskRunFinished(ctx, trID, domain.TaskRunStatusSkipped, "", 0, nil)
		logger.Info("task skipped, upstream did not succeed")
		return
	}

	switch task.Kind {
	case domain.TaskKindIngest:
		s.advance(ctx, e, domain.RunStateRegistering, logger)
	case domain.TaskKindMerge:
		s.advance(ctx, e, domain.RunStateAllRegistered, logger)
	}

	_ = s.runs.UpdateTaskRunStarted(ctx, trID)

	var (
		outcome  string
		lastErr  error
		attempts int
	)
	maxAttempts := task.RetryCount + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff(s.opts.RetryDelay, attempt)
			logger.Info("retrying task", "attempt", attempt+1, "backoff", backoff)
			if err := sleepCtx(ctx, backoff); err != nil {
				lastErr = err
				break
			}
		}
		attempts++

		outcome, lastErr = s.attemptTask(ctx, e, task)
		if lastErr == nil {
			break
		}
		logger.Warn("task attempt failed", "attempt", attempt+1, "error", lastErr)

		var ve *domain.ValidationError
		if errors.As(lastErr, &ve) {
			break
		}
	}

	if lastErr != nil {
		errMsg := lastErr.Error()
		e.setStatus(task.Name, domain.TaskRunStatusFailed)
		_ = s.runs.UpdateTaskRunFinished(ctx, trID, domain.TaskRunStatusFailed, "", attempts, &errMsg)
		if task.Kind == domain.TaskKindDropBranch {
			logger.Warn("branch cleanup failed", "error", lastErr)
			return
		}
		e.mu.Lock()
		e.failures = append(e.failures, fmt.Sprintf("%s: %v", task.Name, lastErr))
		e.mu.Unlock()
		logger.Error("task failed", "attempts", attempts, "error", lastErr)
		return
	}

	e.setStatus(task.Name, domain.TaskRunStatusSuccess)
	_ = s.runs.UpdateTaskRunFinished(ctx, trID, domain.TaskRunStatusSuccess, outcome, attempts, nil)
	if task.Kind == domain.TaskKindCreateBranch {
		s.advance(ctx, e, domain.RunStateBranchReady, logger)
	}
	logger.Info("task completed", "outcome", outcome, "attempts", attempts)
}

// attemptTask runs a single attempt of task. Panics are returned as errors.
func (s *Service) attemptTask(ctx context.Context, e *execution, task domain.Task) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch task.Kind {
	case domain.TaskKindCreateBranch:
		out, err := s.branches.CreateBranch(ctx, e.run.Branch, e.run.TargetRef)
		return string(out), err

	case domain.TaskKindIngest:
		spec := e.specs[task.Dataset]
		staged, err := s.ingester.Ingest(ctx, spec.Name, spec.FolderID)
		if err != nil {
			return "", err
		}
		e.mu.Lock()
		e.staged[spec.Name] = staged
		e.mu.Unlock()
		return "STAGED", nil

	case domain.TaskKindRegister:
		reg, err := s.registration(e, task.Dataset)
		if err != nil {
			return "", err
		}
		out, err := s.tables.EnsureTable(ctx, reg)
		return string(out), err

	case domain.TaskKindMerge:
		if _, err := s.publisher.Merge(ctx, e.run.Branch, e.run.TargetRef); err != nil {
			return "", err
		}
		return "MERGED", nil

	case domain.TaskKindDropBranch:
		if err := s.branches.DropBranch(ctx, e.run.Branch); err != nil {
			return "", err
		}
		return "DROPPED", nil
	}
	return "", domain.ErrValidation("unknown task kind %q", task.Kind)
}

// registration builds the table registration for a staged dataset. The schema
// is parsed here so a bad contract fails only its own dataset.
func (s *Service) registration(e *execution, dataset string) (domain.TableRegistration, error) {
	spec := e.specs[dataset]
	e.mu.Lock()
	staged := e.staged[dataset]
	e.mu.Unlock()
	if staged == nil {
		return domain.TableRegistration{}, fmt.Errorf("dataset %s was not staged", dataset)
	}

	columns, err := ddl.ParseColumns(spec.Schema)
	if err != nil {
		return domain.TableRegistration{}, err
	}
	return domain.TableRegistration{
		Dataset:  spec.Name,
		Branch:   e.run.Branch,
		Location: staged.Location(s.opts.StorageScheme),
		Bucket:   staged.Bucket,
		Folder:   staged.Prefix,
		Columns:  columns,
		Format:   spec.Format,
	}, nil
}

// maxRetryBackoff caps the wait between attempts.
const maxRetryBackoff = 6 * time.Hour

// retryBackoff returns the wait before retry n (1-based): base, 2*base, 4*base...
// capped at maxRetryBackoff.
func retryBackoff(base time.Duration, n int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < n; i++ {
		if d >= maxRetryBackoff/2 {
			return maxRetryBackoff
		}
		d *= 2
	}
	return min(d, maxRetryBackoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
