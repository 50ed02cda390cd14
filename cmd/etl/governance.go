package main

import (
	"context"

	"github.com/spf13/cobra"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

func newApprovalsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "approvals", Short: "Submit and decide workflow approvals"}

	var approvalType, submitComments string
	submit := jobCommand(opts, "submit", "Request approval for a job",
		func(ctx context.Context, _ *cobra.Command, s services, jobID string) (interface{}, error) {
			t, err := model.ParseApprovalType(approvalType)
			if err != nil {
				return nil, exception.NewEtlError("cli", exception.KindValidation, err.Error(), err)
			}
			return s.Workflow.Submit(ctx, jobID, opts.user, t, submitComments)
		})
	submit.Flags().StringVar(&approvalType, "type", string(model.ApprovalDataPromotion), "data_promotion, schema_change or job_execution")
	submit.Flags().StringVar(&submitComments, "comments", "", "submitter comments")

	decide := func(use, short string, decision model.Decision) *cobra.Command {
		var comments string
		c := &cobra.Command{
			Use:   use + " <approval-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
					approval, err := s.Workflow.Decide(ctx, args[0], opts.user, decision, comments)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), approval)
				})
			},
		}
		c.Flags().StringVar(&comments, "comments", "", "reviewer comments")
		return c
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List approvals awaiting the acting user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				approvals, err := s.Workflow.ListPendingFor(ctx, opts.user)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), approvals)
			})
		},
	}

	cmd.AddCommand(
		submit,
		decide("approve", "Approve a pending approval", model.DecisionApprove),
		decide("reject", "Reject a pending approval", model.DecisionReject),
		pending,
	)
	return cmd
}

func newLineageCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "lineage", Short: "Inspect job lineage"}
	cmd.AddCommand(
		jobCommand(opts, "trace", "Show the lineage events and dependencies of a job",
			func(ctx context.Context, _ *cobra.Command, s services, jobID string) (interface{}, error) {
				return s.Lineage.Trace(ctx, jobID)
			}),
		jobCommand(opts, "report", "Summarize the lineage of a job",
			func(ctx context.Context, _ *cobra.Command, s services, jobID string) (interface{}, error) {
				return s.Lineage.Report(ctx, jobID)
			}),
	)
	return cmd
}

func newExceptionsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "exceptions", Short: "Inspect and resolve data exceptions"}

	var jobID string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the exceptions of a job, or the most recent ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				var (
					excs []*model.DataException
					err  error
				)
				if jobID != "" {
					excs, err = s.Exceptions.ForJob(ctx, jobID)
				} else {
					excs, err = s.Exceptions.Recent(ctx, limit)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), excs)
			})
		},
	}
	list.Flags().StringVar(&jobID, "job", "", "only exceptions of this job")
	list.Flags().IntVar(&limit, "limit", 50, "number of recent exceptions")

	var notes string
	resolve := &cobra.Command{
		Use:   "resolve <exception-id>",
		Short: "Mark an exception as resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				exc, err := s.Exceptions.Resolve(ctx, args[0], opts.user, notes)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), exc)
			})
		},
	}
	resolve.Flags().StringVar(&notes, "notes", "", "resolution notes")

	var statsJob string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count exceptions by type and severity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				var filter *string
				if statsJob != "" {
					filter = &statsJob
				}
				st, err := s.Exceptions.Statistics(ctx, filter)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
	stats.Flags().StringVar(&statsJob, "job", "", "only exceptions of this job")

	cmd.AddCommand(list, resolve, stats)
	return cmd
}
