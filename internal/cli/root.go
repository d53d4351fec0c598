package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/promote/internal/config"
	"github.com/roach88/promote/internal/policy"
	"github.com/roach88/promote/internal/store"
	"github.com/roach88/promote/internal/transfer"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	config.Config
	Format string // "json" | "text"

	// IDGenerator overrides delivery ID generation (for testing).
	IDGenerator transfer.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the promote CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Config: config.Load()})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote content between workspaces",
		Long: `Promote moves entity revisions between a tree of workspaces.

Each workspace keeps its own lineage of revisions. Deliveries carry selected
revisions from a source workspace into one or more targets, where they are
classified, checked for conflicts and resolved field by field.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.Validate()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", opts.Verbose, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", opts.Database, "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.PolicyDir, "policy", opts.PolicyDir, "directory of CUE field-policy files")
	cmd.PersistentFlags().IntVar(&opts.BatchSize, "batch-size", opts.BatchSize, "entities per push batch")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", opts.LogFormat, "log format (text|json)")

	cmd.AddCommand(NewWorkspaceCommand(opts))
	cmd.AddCommand(NewRevisionCommand(opts))
	cmd.AddCommand(NewDeliveryCommand(opts))
	cmd.AddCommand(NewPolicyCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// app is the store and engine one command works against.
type app struct {
	store  *store.Store
	engine *transfer.Engine
	logger *slog.Logger
}

// open opens the database and loads the field policy.
func (o *RootOptions) open(cmd *cobra.Command, f *OutputFormatter) (*app, error) {
	logger := o.logger(cmd.ErrOrStderr())

	var p *policy.Policy
	if o.PolicyDir != "" {
		loaded, err := policy.LoadDir(o.PolicyDir)
		if err != nil {
			f.Error(ErrCodePolicy, fmt.Sprintf("loading policy: %v", err), nil)
			return nil, WrapExitError(ExitCommandError, "loading policy", err)
		}
		p = loaded
	}

	f.VerboseLog("opening database %s", o.Database)
	st, err := store.Open(o.Database)
	if err != nil {
		f.Error(ErrCodeDatabase, fmt.Sprintf("opening database: %v", err), nil)
		return nil, WrapExitError(ExitCommandError, "opening database", err)
	}

	engineOpts := []transfer.Option{
		transfer.WithLogger(logger),
		transfer.WithBatchSize(o.BatchSize),
	}
	if o.IDGenerator != nil {
		engineOpts = append(engineOpts, transfer.WithIDGenerator(o.IDGenerator))
	}
	return &app{store: st, engine: transfer.New(st, p, engineOpts...), logger: logger}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// logger writes Info and above to w, Debug with --verbose.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	return o.Config.Logger(w)
}
