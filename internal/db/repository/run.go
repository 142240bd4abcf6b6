package repository

import (
	"context"
	"database/sql"
	"time"

	"lake-wap/internal/domain"
)

// Compile-time check.
var _ domain.RunRepository = (*RunRepo)(nil)

const (
	sqliteTimeLayout = "2006-01-02 15:04:05"
	dateLayout       = "2006-01-02"
)

const runColumns = `id, branch, target_ref, logical_date, state, trigger_type,
	error_message, started_at, finished_at, created_at`

const taskRunColumns = `id, run_id, task_name, dataset, status, outcome, attempts,
	error_message, started_at, finished_at, created_at`

// RunRepo implements domain.RunRepository using SQLite.
type RunRepo struct {
	db *sql.DB
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// CreateRun inserts a new pipeline run in the CREATED state.
func (r *RunRepo) CreateRun(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error) {
	state := run.State
	if state == "" {
		state = domain.RunStateCreated
	}
	id := domain.NewID()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, branch, target_ref, logical_date, state, trigger_type, started_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`,
		id, run.Branch, run.TargetRef, run.LogicalDate.UTC().Format(dateLayout), state, run.TriggerType,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetRunByID(ctx, id)
}

// GetRunByID returns a pipeline run by its ID.
func (r *RunRepo) GetRunByID(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return run, nil
}

// GetLatestRunByBranch returns the most recent run for a branch.
func (r *RunRepo) GetLatestRunByBranch(ctx context.Context, branch string) (*domain.PipelineRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs
		WHERE branch = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, branch)
	run, err := scanRun(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	runs := make([]domain.PipelineRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// CountActiveRuns returns the number of runs on branch not yet PUBLISHED or FAILED.
func (r *RunRepo) CountActiveRuns(ctx context.Context, branch string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM pipeline_runs
		WHERE branch = ? AND state NOT IN (?, ?)`,
		branch, domain.RunStatePublished, domain.RunStateFailed,
	).Scan(&n)
	return n, err
}

// FailInterruptedRuns marks every non-terminal run, and its unfinished task
// runs, as FAILED. Called at startup: no run can still be executing then.
func (r *RunRepo) FailInterruptedRuns(ctx context.Context, reason string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `UPDATE task_runs
		SET status = ?, error_message = ?, finished_at = datetime('now')
		WHERE status IN (?, ?) AND run_id IN (
			SELECT id FROM pipeline_runs WHERE state NOT IN (?, ?))`,
		domain.TaskRunStatusFailed, reason,
		domain.TaskRunStatusPending, domain.TaskRunStatusRunning,
		domain.RunStatePublished, domain.RunStateFailed)
	if err != nil {
		return 0, mapDBError(err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE pipeline_runs
		SET state = ?, error_message = ?, finished_at = datetime('now')
		WHERE state NOT IN (?, ?)`,
		domain.RunStateFailed, reason, domain.RunStatePublished, domain.RunStateFailed)
	if err != nil {
		return 0, mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// UpdateRunState moves a run to a non-terminal state.
func (r *RunRepo) UpdateRunState(ctx context.Context, id, state string) error {
	return r.execOne(ctx, `UPDATE pipeline_runs SET state = ? WHERE id = ?`, state, id)
}

// UpdateRunFinished moves a run to a terminal state.
func (r *RunRepo) UpdateRunFinished(ctx context.Context, id, state string, errorMsg *string) error {
	return r.execOne(ctx, `UPDATE pipeline_runs
		SET state = ?, error_message = ?, finished_at = datetime('now') WHERE id = ?`,
		state, nullStrFromPtr(errorMsg), id)
}

// CreateTaskRun inserts a new task run.
func (r *RunRepo) CreateTaskRun(ctx context.Context, tr *domain.TaskRun) (*domain.TaskRun, error) {
	status := tr.Status
	if status == "" {
		status = domain.TaskRunStatusPending
	}
	id := domain.NewID()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO task_runs (id, run_id, task_name, dataset, status)
		VALUES (?, ?, ?, ?, ?)`,
		id, tr.RunID, tr.TaskName, tr.Dataset, status,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+taskRunColumns+` FROM task_runs WHERE id = ?`, id)
	out, err := scanTaskRun(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return out, nil
}

// ListTaskRunsByRun returns all task runs of a run in creation order.
func (r *RunRepo) ListTaskRunsByRun(ctx context.Context, runID string) ([]domain.TaskRun, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskRunColumns+` FROM task_runs
		WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.TaskRun, 0)
	for rows.Next() {
		tr, err := scanTaskRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tr)
	}
	return out, rows.Err()
}

// UpdateTaskRunStarted marks a task run as RUNNING.
func (r *RunRepo) UpdateTaskRunStarted(ctx context.Context, id string) error {
	return r.execOne(ctx, `UPDATE task_runs SET status = ?, started_at = datetime('now') WHERE id = ?`,
		domain.TaskRunStatusRunning, id)
}

// UpdateTaskRunFinished records the final status of a task run.
func (r *RunRepo) UpdateTaskRunFinished(ctx context.Context, id, status, outcome string, attempts int, errorMsg *string) error {
	return r.execOne(ctx, `UPDATE task_runs
		SET status = ?, outcome = ?, attempts = ?, error_message = ?, finished_at = datetime('now')
		WHERE id = ?`,
		status, outcome, attempts, nullStrFromPtr(errorMsg), id)
}

func (r *RunRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapDBError(sql.ErrNoRows)
	}
	return nil
}

// === Private mappers ===

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.PipelineRun, error) {
	var (
		run                   domain.PipelineRun
		logicalDate, created  string
		errMsg                sql.NullString
		startedAt, finishedAt sql.NullString
	)
	if err := s.Scan(&run.ID, &run.Branch, &run.TargetRef, &logicalDate, &run.State, &run.TriggerType,
		&errMsg, &startedAt, &finishedAt, &created); err != nil {
		return nil, err
	}
	run.LogicalDate, _ = time.Parse(dateLayout, logicalDate)
	run.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
	run.ErrorMessage = ptrFromNullStr(errMsg)
	run.StartedAt = timeFromNullStr(startedAt)
	run.FinishedAt = timeFromNullStr(finishedAt)
	return &run, nil
}

func scanTaskRun(s scanner) (*domain.TaskRun, error) {
	var (
		tr                    domain.TaskRun
		created               string
		errMsg                sql.NullString
		startedAt, finishedAt sql.NullString
	)
	if err := s.Scan(&tr.ID, &tr.RunID, &tr.TaskName, &tr.Dataset, &tr.Status, &tr.Outcome, &tr.Attempts,
		&errMsg, &startedAt, &finishedAt, &created); err != nil {
		return nil, err
	}
	tr.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
	tr.ErrorMessage = ptrFromNullStr(errMsg)
	tr.StartedAt = timeFromNullStr(startedAt)
	tr.FinishedAt = timeFromNullStr(finishedAt)
	return &tr, nil
}

func timeFromNullStr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(sqliteTimeLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func ptrFromNullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullStrFromPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
