package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lake-wap/internal/ddl"
	"lake-wap/internal/domain"
	"lake-wap/internal/service/pipeline"
	"lake-wap/internal/storage"
)

func newBranchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Create or drop catalog branches",
	}

	var from string
	createCmd := &cobra.Command{
		Use:     "create <branch>",
		Short:   "Create a branch (idempotent)",
		Example: `  wap branch create dev_20250101 --from main`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := runtimeFrom(cmd).Catalog(cmd.Context())
			if err != nil {
				return err
			}
			source := from
			if source == "" {
				source = ops.Options.MainRef
			}
			outcome, err := ops.Branches.CreateBranch(cmd.Context(), args[0], source)
			if err != nil {
				return err
			}
			return printOutcome(cmd, map[string]string{
				"branch":  args[0],
				"source":  source,
				"outcome": string(outcome),
			}, "Branch %q from %q: %s\n", args[0], source, outcome)
		},
	}
	createCmd.Flags().StringVar(&from, "from", "", "Source reference (default CATALOG_MAIN_REF)")

	dropCmd := &cobra.Command{
		Use:   "drop <branch>",
		Short: "Drop a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := runtimeFrom(cmd).Catalog(cmd.Context())
			if err != nil {
				return err
			}
			if err := ops.Branches.DropBranch(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printOutcome(cmd, map[string]string{
				"branch":  args[0],
				"outcome": "DROPPED",
			}, "Branch %q dropped\n", args[0])
		},
	}

	cmd.AddCommand(createCmd, dropCmd)
	return cmd
}

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Register staged datasets as catalog tables",
	}

	var (
		branch   string
		schema   string
		format   string
		bucket   string
		location string
	)
	ensureCmd := &cobra.Command{
		Use:   "ensure <dataset>",
		Short: "Register a staged dataset as a table on a branch (idempotent)",
		Example: `  wap table ensure clima_pluviometria --branch dev_20250101 --bucket mvp-bronze \
    --schema "data DATE, estacao VARCHAR, chuva_mm DOUBLE"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataset := args[0]
			columns, err := ddl.ParseColumns(schema)
			if err != nil {
				return err
			}
			tf, err := domain.ParseTableFormat(format)
			if err != nil {
				return err
			}
			rt := runtimeFrom(cmd)
			folder := dataset
			if location == "" {
				if bucket == "" {
					return domain.ErrValidation("--bucket or --location is required")
				}
				location = fmt.Sprintf("%s://%s/%s", stagingScheme(rt.Config().Storage.BronzeURI), bucket, dataset)
			} else {
				locBucket, locFolder := splitLocation(location)
				if bucket == "" {
					bucket = locBucket
				}
				if locFolder != "" {
					folder = locFolder
				}
			}

			ops, err := rt.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			outcome, err := ops.Tables.EnsureTable(cmd.Context(), domain.TableRegistration{
				Dataset:  dataset,
				Branch:   branch,
				Location: location,
				Bucket:   bucket,
				Folder:   folder,
				Columns:  columns,
				Format:   tf,
			})
			if err != nil {
				return err
			}
			return printOutcome(cmd, map[string]string{
				"dataset": dataset,
				"branch":  branch,
				"outcome": string(outcome),
			}, "Table %q on %q: %s\n", dataset, branch, outcome)
		},
	}
	ensureCmd.Flags().StringVar(&branch, "branch", "", "Branch to register on (required)")
	ensureCmd.Flags().StringVar(&schema, "schema", "", `Column contract, e.g. "id BIGINT, name VARCHAR"; empty infers`)
	ensureCmd.Flags().StringVar(&format, "format", "", "Table format (iceberg, parquet)")
	ensureCmd.Flags().StringVar(&bucket, "bucket", "", "Bucket holding the staged files")
	ensureCmd.Flags().StringVar(&location, "location", "", "Staged location URI (default <BUCKET_BRONZE scheme>://<bucket>/<dataset>)")
	_ = ensureCmd.MarkFlagRequired("branch")

	cmd.AddCommand(ensureCmd)
	return cmd
}

func newMergeCmd() *cobra.Command {
	var into string
	cmd := &cobra.Command{
		Use:     "merge <branch>",
		Short:   "Merge a branch into its target reference",
		Example: `  wap merge dev_20250101 --into main`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := runtimeFrom(cmd).Catalog(cmd.Context())
			if err != nil {
				return err
			}
			target := into
			if target == "" {
				target = ops.Options.MainRef
			}
			merge, err := ops.Publisher.Merge(cmd.Context(), args[0], target)
			if err != nil {
				return err
			}
			return printOutcome(cmd, map[string]string{
				"source":  merge.Source,
				"target":  merge.Target,
				"outcome": "MERGED",
			}, "Merged %q into %q\n", merge.Source, merge.Target)
		},
	}
	cmd.Flags().StringVar(&into, "into", "", "Target reference (default CATALOG_MAIN_REF)")
	return cmd
}

func printOutcome(cmd *cobra.Command, v map[string]string, format string, args ...interface{}) error {
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(cmd.OutOrStdout(), v)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	return err
}

// splitLocation splits scheme://bucket/prefix into its bucket and prefix.
func splitLocation(location string) (bucket, prefix string) {
	_, rest, ok := strings.Cut(location, "://")
	if !ok {
		return "", ""
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	return bucket, strings.Trim(prefix, "/")
}

// stagingScheme returns the URI scheme of the bronze bucket, defaulting to gs.
func stagingScheme(bronzeURI string) string {
	if bronzeURI == "" {
		return pipeline.DefaultStorageScheme
	}
	loc, err := storage.ParseURI(bronzeURI)
	if err != nil {
		return pipeline.DefaultStorageScheme
	}
	return loc.Scheme
}
