package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scripter/internal/cron"
	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/timefmt"
)

type scheduleRow struct {
	ID              int64  `json:"id"`
	Script          string `json:"script"`
	IntervalSeconds int64  `json:"interval_seconds,omitempty"`
	Cron            string `json:"cron,omitempty"`
	TZ              string `json:"tz,omitempty"`
	LastRun         string `json:"last_run,omitempty"`
}

// NewScheduleCommand creates the schedule verb group.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Attach interval or cron schedules to scripts",
	}
	cmd.AddCommand(newScheduleAddCommand(rootOpts))
	cmd.AddCommand(newScheduleAddCronCommand(rootOpts))
	cmd.AddCommand(newScheduleListCommand(rootOpts))
	return cmd
}

func newScheduleAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "add <script> <interval-seconds>",
		Short:         "Add an interval schedule",
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
				return WrapExitError(ExitCommandError, "add schedule", err)
			}

			var interval int64
			if _, err := fmt.Sscanf(args[1], "%d", &interval); err != nil || interval <= 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("interval must be a positive integer, got %q", args[1]))
			}

			id, err := st.AddIntervalSchedule(cmd.Context(), sc.ID, interval)
			if err != nil {
				return WrapExitError(ExitCommandError, "add schedule", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"id": id, "script": sc.Name, "interval_seconds": interval})
			}
			fmt.Fprintf(f.Writer, "Added schedule %d: %s every %ds\n", id, sc.Name, interval)
			return nil
		},
	}
}

func newScheduleAddCronCommand(rootOpts *RootOptions) *cobra.Command {
	var tz string

	cmd := &cobra.Command{
		Use:           "add-cron <script> <expression>",
		Short:         "Add a five-field cron schedule",
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
				return WrapExitError(ExitCommandError, "add cron schedule", err)
			}

			if err := cron.Parse(args[1]); err != nil {
				return WrapExitError(ExitCommandError, "add cron schedule", err)
			}
			if tz != "" {
				if _, err := time.LoadLocation(tz); err != nil {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown timezone %q", tz))
				}
			}

			id, err := st.AddCronSchedule(cmd.Context(), sc.ID, args[1], tz)
			if err != nil {
				return WrapExitError(ExitCommandError, "add cron schedule", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"id": id, "script": sc.Name, "cron": args[1], "tz": tz})
			}
			fmt.Fprintf(f.Writer, "Added schedule %d: %s cron %q\n", id, sc.Name, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone for evaluation (default: local)")
	return cmd
}

func newScheduleListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List schedules",
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

			schedules, err := st.ListSchedules(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "list schedules", err)
			}

			if f.JSON() {
				rows := make([]scheduleRow, 0, len(schedules))
				for _, sch := range schedules {
					row := scheduleRow{ID: sch.ID, Script: sch.ScriptName, Cron: sch.Cron, TZ: sch.TZ, LastRun: sch.LastRun}
					if sch.IntervalSeconds != nil {
						row.IntervalSeconds = *sch.IntervalSeconds
					}
					rows = append(rows, row)
				}
				return f.SuccessJSON(rows)
			}

			if len(schedules) == 0 {
				fmt.Fprintln(f.Writer, "No schedules.")
				return nil
			}
			w := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSCRIPT\tWHEN\tLAST RUN")
			for _, sch := range schedules {
				when := sch.Cron
				if sch.IntervalSeconds != nil {
					when = fmt.Sprintf("every %ds", *sch.IntervalSeconds)
				} else if sch.TZ != "" {
					when = fmt.Sprintf("%s (%s)", sch.Cron, sch.TZ)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", sch.ID, sch.ScriptName, when, timefmt.ToLocalDisplay(sch.LastRun))
			}
			return w.Flush()
		},
	}
}
