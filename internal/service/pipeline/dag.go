// Package pipeline orchestrates publishing runs: it plans the task DAG for a
// logical date, executes it level by level and records progress in the run ledger.
package pipeline

import (
	"sort"

	"lake-wap/internal/domain"
)

// Task names.
const (
	TaskCreateBranch = domain.TaskKindCreateBranch
	TaskMerge        = domain.TaskKindMerge
	TaskDropBranch   = domain.TaskKindDropBranch
)

// IngestTaskName is the name of the ingestion task of a dataset.
func IngestTaskName(dataset string) string { return domain.TaskKindIngest + "_" + dataset }

// RegisterTaskName is the name of the table registration task of a dataset.
func RegisterTaskName(dataset string) string { return domain.TaskKindRegister + "_" + dataset }

// PlanTasks builds the run DAG:
//
//	create_branch -> ingest_<d> -> ensure_table_<d> -> merge_branch [-> drop_branch]
//
// merge_branch depends on create_branch and every registration, so it runs only
// once the branch is ready and all registrations have succeeded.
func PlanTasks(datasets []domain.DatasetSpec, retries int, dropBranch bool) []domain.Task {
	tasks := []domain.Task{{Name: TaskCreateBranch, Kind: domain.TaskKindCreateBranch, RetryCount: retries}}

	mergeDeps := make([]string, 0, len(datasets)+1)
	mergeDeps = append(mergeDeps, TaskCreateBranch)
	for _, ds := range datasets {
		ingest := IngestTaskName(ds.Name)
		register := RegisterTaskName(ds.Name)
		tasks = append(tasks,
			domain.Task{Name: ingest, Kind: domain.TaskKindIngest, Dataset: ds.Name, DependsOn: []string{TaskCreateBranch}, RetryCount: retries},
			domain.Task{Name: register, Kind: domain.TaskKindRegister, Dataset: ds.Name, DependsOn: []string{ingest}, RetryCount: retries},
		)
		mergeDeps = append(mergeDeps, register)
	}

	tasks = append(tasks, domain.Task{Name: TaskMerge, Kind: domain.TaskKindMerge, DependsOn: mergeDeps, RetryCount: retries})
	if dropBranch {
		tasks = append(tasks, domain.Task{Name: TaskDropBranch, Kind: domain.TaskKindDropBranch, DependsOn: []string{TaskMerge}})
	}
	return tasks
}

// ResolveExecutionOrder computes a topological ordering of tasks using Kahn's
// algorithm. Returns levels of task names where each level can execute in
// parallel; names within a level are sorted. Returns an error if cycles,
// duplicate names or unknown deps exist.
func ResolveExecutionOrder(tasks []domain.Task) ([][]string, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string) // dep name → names of tasks that depend on it

	for _, t := range tasks {
		if _, dup := inDegree[t.Name]; dup {
			return nil, domain.ErrValidation("duplicate task: %s", t.Name)
		}
		inDegree[t.Name] = 0
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := inDegree[dep]; !ok {
				return nil, domain.ErrValidation("unknown dependency: %s", dep)
			}
			if dep == t.Name {
				return nil, domain.ErrValidation("self dependency: %s", t.Name)
			}
			dependents[dep] = append(dependents[dep], t.Name)
			inDegree[t.Name]++
		}
	}

	var levels [][]string
	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	processed := 0
	for len(queue) > 0 {
		sort.Strings(queue)
		levels = append(levels, queue)
		processed += len(queue)

		var next []string
		for _, name := range queue {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if processed != len(tasks) {
		return nil, domain.ErrValidation("cycle detected in task dependencies")
	}
	return levels, nil
}
