package api

import (
	"time"

	"lake-wap/internal/domain"
)

// TriggerRunBody is the request body of POST /api/v1/runs.
type TriggerRunBody struct {
	LogicalDate string   `json:"logical_date"` // YYYY-MM-DD; empty means yesterday (UTC)
	Datasets    []string `json:"datasets,omitempty"`
	Force       bool     `json:"force,omitempty"`
}

// PipelineRun is the JSON form of a run.
type PipelineRun struct {
	ID           string     `json:"id"`
	Branch       string     `json:"branch"`
	TargetRef    string     `json:"target_ref"`
	LogicalDate  string     `json:"logical_date"`
	State        string     `json:"state"`
	TriggerType  string     `json:"trigger_type"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Tasks        []TaskRun  `json:"tasks,omitempty"`
}

// TaskRun is the JSON form of a task run.
type TaskRun struct {
	TaskName     string     `json:"task_name"`
	Dataset      string     `json:"dataset,omitempty"`
	Status       string     `json:"status"`
	Outcome      string     `json:"outcome,omitempty"`
	Attempts     int        `json:"attempts"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Dataset is the JSON form of a configured dataset.
type Dataset struct {
	Name   string `json:"name"`
	Typed  bool   `json:"typed"`
	Schema string `json:"schema,omitempty"`
	Format string `json:"format"`
}

// === Mapping helpers ===

// RunToAPI converts a run to its JSON form.
func RunToAPI(r domain.PipelineRun) PipelineRun {
	return PipelineRun{
		ID:           r.ID,
		Branch:       r.Branch,
		TargetRef:    r.TargetRef,
		LogicalDate:  r.LogicalDate.UTC().Format(time.DateOnly),
		State:        r.State,
		TriggerType:  r.TriggerType,
		ErrorMessage: r.ErrorMessage,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		CreatedAt:    r.CreatedAt,
	}
}

// TaskRunToAPI converts a task run to its JSON form.
func TaskRunToAPI(tr domain.TaskRun) TaskRun {
	return TaskRun{
		TaskName:     tr.TaskName,
		Dataset:      tr.Dataset,
		Status:       tr.Status,
		Outcome:      tr.Outcome,
		Attempts:     tr.Attempts,
		ErrorMessage: tr.ErrorMessage,
		StartedAt:    tr.StartedAt,
		FinishedAt:   tr.FinishedAt,
	}
}

func datasetToAPI(d domain.DatasetSpec) Dataset {
	format := string(d.Format)
	if format == "" {
		format = string(domain.TableFormatIceberg)
	}
	return Dataset{Name: d.Name, Typed: d.Schema != "", Schema: d.Schema, Format: format}
}
