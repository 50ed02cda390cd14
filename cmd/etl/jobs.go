package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

// jobCommand builds a command taking a single job id.
func jobCommand(opts *globalOptions, use, short string, fn func(ctx context.Context, cmd *cobra.Command, s services, jobID string) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				out, err := fn(ctx, cmd, s, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}

func newJobsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Inspect jobs"}

	show := jobCommand(opts, "show", "Show a job with its detected schemas and approvals",
		func(ctx context.Context, _ *cobra.Command, s services, jobID string) (interface{}, error) {
			job, err := s.Explorer.GetJob(ctx, jobID)
			if err != nil {
				return nil, err
			}
			schemas, err := s.Explorer.SchemasForJob(ctx, jobID)
			if err != nil {
				return nil, err
			}
			approvals, err := s.Workflow.ForJob(ctx, jobID)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"job": job, "schemas": schemas, "approvals": approvals}, nil
		})

	var status, source string
	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs by status or by source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				var (
					jobs []*model.Job
					err  error
				)
				if source != "" {
					jobs, err = s.Explorer.FindJobsBySource(ctx, source)
				} else {
					st, perr := model.ParseJobStatus(strings.ToLower(status))
					if perr != nil {
						return exception.NewEtlError("cli", exception.KindValidation, perr.Error(), perr)
					}
					jobs, err = s.Explorer.FindJobsByStatus(ctx, st)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), jobs)
			})
		},
	}
	list.Flags().StringVar(&status, "status", string(model.JobStatusPending), "job status to list")
	list.Flags().StringVar(&source, "source", "", "list the jobs of a data source instead")

	cmd.AddCommand(show, list)
	return cmd
}

func newRunCommand(opts *globalOptions) *cobra.Command {
	return jobCommand(opts, "run", "Run a pending job",
		func(ctx context.Context, _ *cobra.Command, s services, jobID string) (interface{}, error) {
			return s.Launcher.Run(ctx, jobID)
		})
}

func newRunPendingCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-pending",
		Short: "Run every pending job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				jobs, err := s.Launcher.RunPending(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), jobs)
			})
		},
	}
}

func newRetryCommand(opts *globalOptions) *cobra.Command {
	var reason string
	cmd := jobCommand(opts, "retry", "Clone a failed or cancelled job into a new pending job",
		func(ctx context.Context, _ *cobra.Command, s services, jobID string) (interface{}, error) {
			return s.Operator.Retry(ctx, jobID, reason, nil)
		})
	cmd.Flags().StringVar(&reason, "reason", "", "retry reason recorded in lineage")
	return cmd
}

func newAutoRetryCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auto-retry",
		Short: "Retry failed jobs that are still under the attempt limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				jobs, err := s.Workflow.AutoRetryFailed(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), jobs)
			})
		},
	}
}

func newCancelCommand(opts *globalOptions) *cobra.Command {
	return jobCommand(opts, "cancel", "Cancel a pending job",
		func(ctx context.Context, _ *cobra.Command, s services, jobID string) (interface{}, error) {
			return s.Operator.Cancel(ctx, jobID)
		})
}

func newExportCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <job-id> <destination>",
		Short: "Export the output of a completed job to Parquet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				export, err := s.Operator.Export(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), export)
			})
		},
	}
}
