package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/scripter/internal/config"
)

// NewConfigCommand creates the config verb group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Apply and export declarative configuration",
	}
	cmd.AddCommand(newConfigApplyCommand(rootOpts))
	cmd.AddCommand(newConfigExportCommand(rootOpts))
	return cmd
}

func newConfigApplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "apply <file>",
		Short:         "Apply a YAML declaration to the store (additive)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatterFor(rootOpts, cmd)
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			file, err := config.Load(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "config apply", err)
			}

			res, err := config.Apply(cmd.Context(), st, file)
			if err != nil {
				_ = f.Error("invalid_config", err.Error())
				return NewExitError(ExitFailure, err.Error())
			}

			if f.JSON() {
				return f.SuccessJSON(res)
			}
			fmt.Fprintf(f.Writer, "Applied %s:\n", args[0])
			fmt.Fprintf(f.Writer, "  scripts:       %d added, %d skipped\n", res.ScriptsAdded, res.ScriptsSkipped)
			fmt.Fprintf(f.Writer, "  schedules:     %d added, %d skipped\n", res.SchedulesAdded, res.SchedulesSkipped)
			fmt.Fprintf(f.Writer, "  file triggers: %d added, %d skipped\n", res.FileTriggersAdded, res.FileTriggersSkip)
			fmt.Fprintf(f.Writer, "  webhooks:      %d added, %d skipped\n", res.WebhooksAdded, res.WebhooksSkipped)
			return nil
		},
	}
}

func newConfigExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "export",
		Short:         "Export the store as a YAML declaration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatterFor(rootOpts, cmd)
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			file, err := config.Export(cmd.Context(), st)
			if err != nil {
				return WrapExitError(ExitCommandError, "config export", err)
			}
			out, err := config.Marshal(file)
			if err != nil {
				return WrapExitError(ExitCommandError, "config export", err)
			}

			// Export always emits raw YAML; it is meant to be piped to a file
			// and fed back to apply.
			_, err = f.Writer.Write(out)
			return err
		},
	}
}
