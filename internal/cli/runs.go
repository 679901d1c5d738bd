package cli

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/timefmt"
)

type runRow struct {
	ID         int64  `json:"id"`
	ScriptID   int64  `json:"script_id"`
	Status     string `json:"status"`
	Trigger    string `json:"trigger"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
}

// NewRunsCommand creates the runs verb group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
	}
	cmd.AddCommand(newRunsListCommand(rootOpts))
	cmd.AddCommand(newRunsShowCommand(rootOpts))
	cmd.AddCommand(newRunsClearCommand(rootOpts))
	return cmd
}

func newRunsListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		scriptRef string
		limit     int
	)

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List recent runs, newest first",
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

			var scriptID int64
			if scriptRef != "" {
				sc, err := resolveScript(cmd, st, scriptRef)
				if errors.Is(err, store.ErrNotFound) {
					_ = f.Error("not_found", fmt.Sprintf("no script %q", scriptRef))
					return NewExitError(ExitFailure, err.Error())
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "list runs", err)
				}
				scriptID = sc.ID
			}

			runs, err := st.ListRuns(cmd.Context(), scriptID, limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "list runs", err)
			}

			if f.JSON() {
				rows := make([]runRow, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, runRow{
						ID: r.ID, ScriptID: r.ScriptID, Status: r.Status, Trigger: r.Trigger,
						StartedAt: r.StartedAt, FinishedAt: r.FinishedAt, ExitCode: r.ExitCode,
					})
				}
				return f.SuccessJSON(rows)
			}

			if len(runs) == 0 {
				fmt.Fprintln(f.Writer, "No runs.")
				return nil
			}
			w := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSCRIPT\tSTATUS\tTRIGGER\tSTARTED\tEXIT")
			for _, r := range runs {
				exit := ""
				if r.ExitCode != nil {
					exit = strconv.Itoa(*r.ExitCode)
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
					r.ID, r.ScriptID, r.Status, r.Trigger, timefmt.ToLocalDisplay(r.StartedAt), exit)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&scriptRef, "script", "", "filter by script id or name")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	return cmd
}

func newRunsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id>",
		Short:         "Show one run with its captured output",
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

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("bad run id %q", args[0]))
			}
			r, err := st.GetRun(cmd.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				_ = f.Error("not_found", fmt.Sprintf("no run %d", id))
				return NewExitError(ExitFailure, err.Error())
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "show run", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{
					"id": r.ID, "script_id": r.ScriptID, "status": r.Status, "trigger": r.Trigger,
					"started_at": r.StartedAt, "finished_at": r.FinishedAt,
					"exit_code": r.ExitCode, "stdout": r.Stdout, "stderr": r.Stderr,
				})
			}

			fmt.Fprintf(f.Writer, "Run %d: script %d, %s (trigger %s)\n", r.ID, r.ScriptID, r.Status, r.Trigger)
			fmt.Fprintf(f.Writer, "  Started:  %s\n", timefmt.ToLocalDisplay(r.StartedAt))
			if r.FinishedAt != "" {
				fmt.Fprintf(f.Writer, "  Finished: %s\n", timefmt.ToLocalDisplay(r.FinishedAt))
			}
			if r.ExitCode != nil {
				fmt.Fprintf(f.Writer, "  Exit:     %d\n", *r.ExitCode)
			}
			if r.Stdout != "" {
				fmt.Fprintf(f.Writer, "--- stdout ---\n%s", r.Stdout)
			}
			if r.Stderr != "" {
				fmt.Fprintf(f.Writer, "--- stderr ---\n%s", r.Stderr)
			}
			return nil
		},
	}
}

func newRunsClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Delete all run history",
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

			n, err := st.ClearRuns(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "clear runs", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"deleted": n})
			}
			fmt.Fprintf(f.Writer, "Deleted %d run(s)\n", n)
			return nil
		},
	}
}
