package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/timefmt"
)

type oneShotRow struct {
	ID      int64  `json:"id"`
	Script  int64  `json:"script_id"`
	RunAt   string `json:"run_at_utc"`
	TZ      string `json:"tz,omitempty"`
	FiredAt string `json:"fired_at_utc,omitempty"`
}

// NewOneShotCommand creates the oneshot verb group.
func NewOneShotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oneshot",
		Short: "Schedule single future executions",
	}
	cmd.AddCommand(newOneShotAddCommand(rootOpts))
	cmd.AddCommand(newOneShotListCommand(rootOpts))
	cmd.AddCommand(newOneShotRemoveCommand(rootOpts))
	return cmd
}

func newOneShotAddCommand(rootOpts *RootOptions) *cobra.Command {
	var tz string

	cmd := &cobra.Command{
		Use:   "add <script> <run-at>",
		Short: "Schedule a script to run once",
		Long: `Schedule a script to run once at the given time.

run-at accepts an RFC 3339 timestamp ("2025-06-01T09:00:00Z") or a
relative duration prefixed with "+" ("+30m", "+2h").`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatterFor(rootOpts, cmd)
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			sc, err := resolveScript(cmd, st, args[0])
			if errors.Is(err, store.ErrNotFound) {
				_ = f.Error("not_found", fmt.Sprintf("no script %q", args[0]))
				return NewExitError(ExitFailure, err.Error())
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "add one-shot", err)
			}

			runAt, err := parseRunAt(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "add one-shot", err)
			}

			id, err := st.AddOneShot(cmd.Context(), sc.ID, runAt, tz)
			if err != nil {
				return WrapExitError(ExitCommandError, "add one-shot", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"id": id, "script": sc.Name, "run_at_utc": runAt})
			}
			fmt.Fprintf(f.Writer, "Added one-shot %d: %s at %s\n", id, sc.Name, timefmt.ToLocalDisplay(runAt))
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "informational timezone label")
	return cmd
}

func newOneShotListCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List pending one-shots",
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

			shots, err := st.ListOneShots(cmd.Context(), all)
			if err != nil {
				return WrapExitError(ExitCommandError, "list one-shots", err)
			}

			if f.JSON() {
				rows := make([]oneShotRow, 0, len(shots))
				for _, o := range shots {
					rows = append(rows, oneShotRow{ID: o.ID, Script: o.ScriptID, RunAt: o.RunAtUTC, TZ: o.TZ, FiredAt: o.FiredAtUTC})
				}
				return f.SuccessJSON(rows)
			}

			if len(shots) == 0 {
				fmt.Fprintln(f.Writer, "No one-shots.")
				return nil
			}
			w := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSCRIPT\tRUN AT\tFIRED")
			for _, o := range shots {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", o.ID, o.ScriptID,
					timefmt.ToLocalDisplay(o.RunAtUTC), timefmt.ToLocalDisplay(o.FiredAtUTC))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include already fired one-shots")
	return cmd
}

func newOneShotRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <id>",
		Short:         "Remove a one-shot",
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
				return NewExitError(ExitCommandError, fmt.Sprintf("bad one-shot id %q", args[0]))
			}
			if err := st.RemoveOneShot(cmd.Context(), id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					_ = f.Error("not_found", fmt.Sprintf("no one-shot %d", id))
					return NewExitError(ExitFailure, err.Error())
				}
				return WrapExitError(ExitCommandError, "remove one-shot", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"removed": id})
			}
			fmt.Fprintf(f.Writer, "Removed one-shot %d\n", id)
			return nil
		},
	}
}

// parseRunAt accepts an absolute RFC 3339 timestamp or "+<duration>"
// relative to now, and returns the canonical stored form.
func parseRunAt(s string) (string, error) {
	if strings.HasPrefix(s, "+") {
		d, err := time.ParseDuration(s[1:])
		if err != nil {
			return "", fmt.Errorf("bad relative time %q: %w", s, err)
		}
		if d <= 0 {
			return "", fmt.Errorf("relative time %q must be in the future", s)
		}
		return timefmt.Format(time.Now().Add(d)), nil
	}
	t, err := timefmt.Parse(s)
	if err != nil {
		return "", err
	}
	return timefmt.Format(t), nil
}
