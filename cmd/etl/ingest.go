package main

import (
	"context"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tigerroll/surfin-etl/pkg/etl/component/reader"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/application/usecase"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/engine/schema"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

func newSourcesCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "sources", Short: "Manage data sources"}

	var description, sourceType string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a data source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				src, err := s.Ingestor.RegisterDataSource(ctx, args[0], description, model.SourceType(sourceType), nil, opts.user)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), src)
			})
		},
	}
	add.Flags().StringVar(&description, "description", "", "free text description")
	add.Flags().StringVar(&sourceType, "type", string(model.SourceTypeAPI), "api, swift or batch")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active data sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				sources, err := s.Explorer.ListDataSources(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sources)
			})
		},
	}
	cmd.AddCommand(add, list)
	return cmd
}

// ingestFlags are shared by the ingest sub-commands.
type ingestFlags struct {
	rulesFile string
	upstream  string
	run       bool
}

func (f *ingestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.rulesFile, "rules", "", "JSON rule-set file stored on the job")
	cmd.Flags().StringVar(&f.upstream, "upstream", "", "export destination the data was read from")
	cmd.Flags().BoolVar(&f.run, "run", false, "run the job right after ingestion")
}

func (f *ingestFlags) options(user string) (usecase.IngestOptions, error) {
	opts := usecase.IngestOptions{CreatedBy: user, Upstream: f.upstream}
	if f.rulesFile == "" {
		return opts, nil
	}
	data, err := os.ReadFile(f.rulesFile)
	if err != nil {
		return opts, exception.NewEtlErrorf("cli", exception.KindValidation, "failed to read rule set %s", f.rulesFile, err)
	}
	rules, err := model.ParseRuleSet(data)
	if err != nil {
		return opts, err
	}
	opts.Rules = rules
	return opts, nil
}

// finish optionally runs the new job and prints the result.
func (f *ingestFlags) finish(ctx context.Context, cmd *cobra.Command, s services, res *usecase.IngestResult) error {
	if f.run {
		job, err := s.Launcher.Run(ctx, res.Job.ID)
		if err != nil {
			return err
		}
		res.Job = job
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func newIngestCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "ingest", Short: "Create jobs from incoming data"}

	var fileFlags ingestFlags
	var sourceID string
	file := &cobra.Command{
		Use:   "file <path>",
		Short: "Ingest a CSV, JSON or XLSX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ingestOpts, err := fileFlags.options(opts.user)
			if err != nil {
				return err
			}
			in := usecase.FileInput{
				Filename:    filepath.Base(args[0]),
				Data:        data,
				ContentType: mime.TypeByExtension(filepath.Ext(args[0])),
			}
			if sourceID != "" {
				in.SourceID = &sourceID
			}
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				res, err := s.Ingestor.IngestFile(ctx, in, ingestOpts)
				if err != nil {
					return err
				}
				return fileFlags.finish(ctx, cmd, s, res)
			})
		},
	}
	fileFlags.bind(file)
	file.Flags().StringVar(&sourceID, "source", "", "data source id")

	var apiFlags ingestFlags
	api := &cobra.Command{
		Use:   "api <source-id> <payload.json>",
		Short: "Ingest a JSON payload for a data source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			ingestOpts, err := apiFlags.options(opts.user)
			if err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				res, err := s.Ingestor.IngestAPI(ctx, args[0], payload, ingestOpts)
				if err != nil {
					return err
				}
				return apiFlags.finish(ctx, cmd, s, res)
			})
		},
	}
	apiFlags.bind(api)

	var swiftFlags ingestFlags
	var messageType, sender, receiver string
	swift := &cobra.Command{
		Use:   "swift <message-file>",
		Short: "Ingest a SWIFT message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ingestOpts, err := swiftFlags.options(opts.user)
			if err != nil {
				return err
			}
			in := usecase.SwiftInput{MessageType: messageType, Content: string(content), Sender: sender, Receiver: receiver}
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				res, err := s.Ingestor.IngestSwift(ctx, in, ingestOpts)
				if err != nil {
					return err
				}
				return swiftFlags.finish(ctx, cmd, s, res)
			})
		},
	}
	swiftFlags.bind(swift)
	swift.Flags().StringVar(&messageType, "type", "MT103", "message type")
	swift.Flags().StringVar(&sender, "sender", "", "sending institution")
	swift.Flags().StringVar(&receiver, "receiver", "", "receiving institution")

	cmd.AddCommand(file, api, swift)
	return cmd
}

func newDetectCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <path>",
		Short: "Detect the schema of a file without creating a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			format, ok := reader.FormatFromFilename(args[0])
			if !ok {
				return exception.NewEtlErrorf("cli", exception.KindUnsupportedInput, "unsupported file type: %s", filepath.Ext(args[0]))
			}
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				doc, err := s.Readers.Decode(ctx, format, data)
				if err != nil {
					return err
				}
				kind := model.SourceKindTabular
				if format == model.RawJSON {
					kind = model.SourceKindJSON
				}
				detected, err := s.Detector.Detect(ctx, doc, kind, schema.Ref{})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), detected)
			})
		},
	}

	approve := &cobra.Command{
		Use:   "approve <schema-id>",
		Short: "Approve a detected schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, s services) error {
				detected, err := s.Detector.Approve(ctx, args[0], opts.user)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), detected)
			})
		},
	}
	cmd.AddCommand(approve)
	return cmd
}
