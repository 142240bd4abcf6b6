package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lake-wap/internal/api"
	"lake-wap/internal/domain"
	"lake-wap/internal/service/pipeline"
)

func newRunCmd() *cobra.Command {
	var (
		date     string
		force    bool
		datasets []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline for a logical date and wait for it to finish",
		Long: `Stages every configured dataset, registers it on the date's branch and
merges the branch into main once every table is registered.

The logical date defaults to yesterday (UTC). A date whose branch is already
published is not re-run unless --force is given.`,
		Example: `  wap run
  wap run --date 2025-01-01
  wap run --date 2025-01-01 --dataset clima_pluviometria --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logical := pipeline.LogicalDateFor(time.Now())
			if date != "" {
				d, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				logical = d
			}

			rt := runtimeFrom(cmd)
			svc, err := rt.Pipeline(cmd.Context())
			if err != nil {
				return err
			}

			run, err := svc.TriggerRun(cmd.Context(), domain.TriggerRunRequest{
				LogicalDate: logical,
				TriggerType: domain.TriggerTypeManual,
				Datasets:    datasets,
				Force:       force,
			})
			if err != nil {
				return err
			}
			svc.Wait()

			run, err = svc.GetRun(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			tasks, err := svc.ListTaskRuns(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if err := printRun(cmd, run, tasks); err != nil {
				return err
			}
			if run.State == domain.RunStateFailed {
				return fmt.Errorf("run %s failed: %s", run.ID, strOrDash(run.ErrorMessage))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Logical date (YYYY-MM-DD); default yesterday UTC")
	cmd.Flags().BoolVar(&force, "force", false, "Re-run a date whose branch is already published")
	cmd.Flags().StringSliceVar(&datasets, "dataset", nil, "Only run these datasets (repeatable)")
	return cmd
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run ledger",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, err := runtimeFrom(cmd).Ledger(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := ledger.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				v := make([]api.PipelineRun, 0, len(runs))
				for _, r := range runs {
					v = append(v, api.RunToAPI(r))
				}
				return PrintJSON(out, v)
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, runRow(r))
			}
			PrintTable(out, runColumns, rows)
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")

	getCmd := &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show a run and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := runtimeFrom(cmd).Ledger(cmd.Context())
			if err != nil {
				return err
			}
			run, err := ledger.GetRunByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tasks, err := ledger.ListTaskRunsByRun(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			return printRun(cmd, run, tasks)
		},
	}

	cmd.AddCommand(listCmd, getCmd)
	return cmd
}

var (
	runColumns  = []string{"id", "branch", "logical_date", "state", "trigger", "error"}
	taskColumns = []string{"task", "status", "outcome", "attempts", "error"}
)

func runRow(r domain.PipelineRun) []string {
	return []string{
		r.ID,
		r.Branch,
		r.LogicalDate.UTC().Format(time.DateOnly),
		r.State,
		r.TriggerType,
		strOrDash(r.ErrorMessage),
	}
}

func printRun(cmd *cobra.Command, run *domain.PipelineRun, tasks []domain.TaskRun) error {
	out := cmd.OutOrStdout()
	if getOutputFormat(cmd) == "json" {
		v := api.RunToAPI(*run)
		v.Tasks = make([]api.TaskRun, 0, len(tasks))
		for _, t := range tasks {
			v.Tasks = append(v.Tasks, api.TaskRunToAPI(t))
		}
		return PrintJSON(out, v)
	}
	PrintTable(out, runColumns, [][]string{runRow(*run)})
	_, _ = io.WriteString(out, "\n")
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		outcome := t.Outcome
		if outcome == "" {
			outcome = "-"
		}
		rows = append(rows, []string{t.TaskName, t.Status, outcome, strconv.Itoa(t.Attempts), strOrDash(t.ErrorMessage)})
	}
	PrintTable(out, taskColumns, rows)
	return nil
}
