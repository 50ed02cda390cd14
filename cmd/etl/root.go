package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "etl",
		Short:         "Ingest, transform and govern data jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "YAML configuration file (defaults to the embedded configuration)")
	flags.StringVar(&opts.envFile, "env-file", envOr("ENV_FILE_PATH", ".env"), ".env file loaded before the configuration")
	flags.StringVar(&opts.store, "store", "sql", "repository backend: sql or memory")
	flags.StringVar(&opts.user, "user", envOr("ETL_USER", "admin"), "id of the acting user")
	flags.DurationVar(&opts.stopTimeout, "stop-timeout", 30*time.Second, "time allowed for background runs to finish on exit")

	root.AddCommand(
		newMigrateCommand(opts),
		newSourcesCommand(opts),
		newIngestCommand(opts),
		newDetectCommand(opts),
		newJobsCommand(opts),
		newRunCommand(opts),
		newRunPendingCommand(opts),
		newRetryCommand(opts),
		newAutoRetryCommand(opts),
		newCancelCommand(opts),
		newExportCommand(opts),
		newApprovalsCommand(opts),
		newLineageCommand(opts),
		newExceptionsCommand(opts),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.migrate(cmd.Context(), down)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll every migration back")
	return cmd
}
