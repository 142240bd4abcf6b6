package domain

import "time"

// Run states. A run moves forward through these in order; FAILED is reachable
// from any of them.
const (
	RunStateCreated       = "CREATED"
	RunStateBranchReady   = "BRANCH_READY"
	RunStateRegistering   = "REGISTERING"
	RunStateAllRegistered = "ALL_REGISTERED"
	RunStatePublished     = "PUBLISHED"
	RunStateFailed        = "FAILED"

	TaskRunStatusPending = "PENDING"
	TaskRunStatusRunning = "RUNNING"
	TaskRunStatusSuccess = "SUCCESS"
	TaskRunStatusFailed  = "FAILED"
	TaskRunStatusSkipped = "SKIPPED"

	TriggerTypeManual    = "MANUAL"
	TriggerTypeScheduled = "SCHEDULED"
)

// Task kinds within a run's DAG.
const (
	TaskKindCreateBranch = "create_branch"
	TaskKindIngest       = "ingest"
	TaskKindRegister     = "ensure_table"
	TaskKindMerge        = "merge_branch"
	TaskKindDropBranch   = "drop_branch"
)

// IsTerminalRunState reports whether no further transitions happen.
func IsTerminalRunState(s string) bool {
	return s == RunStatePublished || s == RunStateFailed
}

// PipelineRun is one execution of the pipeline for a logical date.
type PipelineRun struct {
	ID           string
	Branch       string
	TargetRef    string
	LogicalDate  time.Time
	State        string
	TriggerType  string
	ErrorMessage *string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CreatedAt    time.Time
}

// Task is a node in the run DAG.
type Task struct {
	Name       string
	Kind       string
	Dataset    string // empty for create_branch / merge_branch
	DependsOn  []string
	RetryCount int
}

// TaskRun records the execution of one task within a run.
type TaskRun struct {
	ID           string
	RunID        string
	TaskName     string
	Dataset      string
	Status       string
	Outcome      string
	Attempts     int
	ErrorMessage *string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CreatedAt    time.Time
}

// TriggerRunRequest holds parameters for starting a run.
type TriggerRunRequest struct {
	LogicalDate time.Time
	TriggerType string
	Datasets    []string // subset of configured datasets; empty means all
	Force       bool     // re-run even if the branch is already published
}

// Validate checks that the request is well-formed.
func (r *TriggerRunRequest) Validate() error {
	if r.LogicalDate.IsZero() {
		return ErrValidation("logical date is required")
	}
	switch r.TriggerType {
	case TriggerTypeManual, TriggerTypeScheduled:
	default:
		return ErrValidation("unknown trigger type %q", r.TriggerType)
	}
	return nil
}
