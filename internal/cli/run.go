package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/scripter/internal/config"
	"github.com/roach88/scripter/internal/runner"
	"github.com/roach88/scripter/internal/scheduler"
	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/trigger"
)

// NewRunCommand creates the manual-run command. It goes through the same
// run service as the daemon, so the per-script lock still applies.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		configPath string
		scriptID   int64
	)

	cmd := &cobra.Command{
		Use:           "run [script]",
		Short:         "Run a script immediately",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatterFor(rootOpts, cmd)
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			ref := fmt.Sprintf("%d", scriptID)
			if len(args) == 1 {
				ref = args[0]
			} else if scriptID == 0 {
				return NewExitError(ExitCommandError, "a script name or --script-id is required")
			}

			sc, err := resolveScript(cmd, st, ref)
			if errors.Is(err, store.ErrNotFound) {
				_ = f.Error("not_found", fmt.Sprintf("no script %q", ref))
				return NewExitError(ExitFailure, err.Error())
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "run", err)
			}

			settings, err := config.LoadSettings(configPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "run", err)
			}

			svc := runner.New(st, scheduler.Owner(), settings.ExecTimeout())
			res, err := svc.Execute(cmd.Context(), trigger.Event{TriggerID: "manual", ScriptID: sc.ID})
			if errors.Is(err, runner.ErrLockHeld) {
				_ = f.Error("lock_held", fmt.Sprintf("script %q is already running", sc.Name))
				return NewExitError(ExitFailure, err.Error())
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "run", err)
			}

			run, err := st.GetRun(cmd.Context(), res.RunID)
			if err != nil {
				return WrapExitError(ExitCommandError, "run", err)
			}

			if f.JSON() {
				if err := f.SuccessJSON(map[string]any{
					"run_id": run.ID, "status": run.Status,
					"exit_code": run.ExitCode, "stdout": run.Stdout, "stderr": run.Stderr,
				}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(f.Writer, "Run %d: %s\n", run.ID, run.Status)
				if run.Stdout != "" {
					fmt.Fprint(f.Writer, run.Stdout)
				}
				if run.Stderr != "" {
					fmt.Fprint(cmd.ErrOrStderr(), run.Stderr)
				}
			}
			if run.Status != store.RunSuccess {
				return NewExitError(ExitFailure, fmt.Sprintf("run %d %s", run.ID, run.Status))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "settings file (for exec timeout)")
	cmd.Flags().Int64Var(&scriptID, "script-id", 0, "script id to run (alternative to the positional name)")
	return cmd
}
