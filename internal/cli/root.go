// Package cli implements the scripter command-line interface on cobra.
// Every command opens the store lazily, so `scripter --help` works without
// a database.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/scripter/internal/store"
)

// DefaultDBPath is where the store lives when --db is not given.
const DefaultDBPath = "scripter.db"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath  string
	Format  string // "json" | "text"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the scripter CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "scripter",
		Short: "Scripter - script automation engine",
		Long: `Scripter runs registered shell scripts off interval and cron schedules,
file-watch triggers, one-shots, webhooks and an internal event bus, with all
state in a single embedded SQLite database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", DefaultDBPath, "path to the SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewScriptCommand(opts))
	cmd.AddCommand(NewScheduleCommand(opts))
	cmd.AddCommand(NewOneShotCommand(opts))
	cmd.AddCommand(NewTriggerCommand(opts))
	cmd.AddCommand(NewBusCommand(opts))
	cmd.AddCommand(NewWebhookCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewDaemonCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openStore opens the configured database, mapping failures to command
// errors (exit code 2).
func openStore(opts *RootOptions) (*store.Store, error) {
	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open database %s", opts.DBPath), err)
	}
	return st, nil
}

// formatterFor builds the output formatter for a command invocation.
func formatterFor(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
