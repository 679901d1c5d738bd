package cli

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/watcher"
)

type fileTriggerRow struct {
	ID        int64  `json:"id"`
	Script    string `json:"script"`
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// NewTriggerCommand creates the trigger verb group for file watches.
func NewTriggerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Manage file-watch triggers",
	}
	cmd.AddCommand(newTriggerAddFileCommand(rootOpts))
	cmd.AddCommand(newTriggerListCommand(rootOpts))
	cmd.AddCommand(newTriggerRemoveCommand(rootOpts))
	cmd.AddCommand(newTriggerDebugScanCommand(rootOpts))
	return cmd
}

func newTriggerAddFileCommand(rootOpts *RootOptions) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:           "add-file <script> <path>",
		Short:         "Watch a file or directory for changes",
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
				return WrapExitError(ExitCommandError, "add file trigger", err)
			}

			id, err := st.AddFileTrigger(cmd.Context(), sc.ID, args[1], recursive)
			if err != nil {
				return WrapExitError(ExitCommandError, "add file trigger", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"id": id, "script": sc.Name, "path": args[1], "recursive": recursive})
			}
			fmt.Fprintf(f.Writer, "Added file trigger %d: %s watches %s\n", id, sc.Name, args[1])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "watch subdirectories too")
	return cmd
}

func newTriggerListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List file-watch triggers",
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

			triggers, err := st.ListFileTriggers(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "list file triggers", err)
			}

			if f.JSON() {
				rows := make([]fileTriggerRow, 0, len(triggers))
				for _, ft := range triggers {
					rows = append(rows, fileTriggerRow{ID: ft.ID, Script: ft.ScriptName, Path: ft.Path, Recursive: ft.Recursive})
				}
				return f.SuccessJSON(rows)
			}

			if len(triggers) == 0 {
				fmt.Fprintln(f.Writer, "No file triggers.")
				return nil
			}
			w := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSCRIPT\tPATH\tRECURSIVE")
			for _, ft := range triggers {
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", ft.ID, ft.ScriptName, ft.Path, ft.Recursive)
			}
			return w.Flush()
		},
	}
}

func newTriggerRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <id>",
		Short:         "Remove a file-watch trigger",
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
				return NewExitError(ExitCommandError, fmt.Sprintf("bad trigger id %q", args[0]))
			}
			if err := st.RemoveFileTrigger(cmd.Context(), id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					_ = f.Error("not_found", fmt.Sprintf("no file trigger %d", id))
					return NewExitError(ExitFailure, err.Error())
				}
				return WrapExitError(ExitCommandError, "remove file trigger", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"removed": id})
			}
			fmt.Fprintf(f.Writer, "Removed file trigger %d\n", id)
			return nil
		},
	}
}

// newTriggerDebugScanCommand probes a trigger's path with a fresh oracle:
// the first scan snapshots, the second reports whether anything moved in
// between. Useful to confirm a watch actually sees the files you expect.
func newTriggerDebugScanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "debug-scan <id>",
		Short:         "Probe a file trigger's path and report change detection",
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
				return NewExitError(ExitCommandError, fmt.Sprintf("bad trigger id %q", args[0]))
			}
			ft, err := st.GetFileTrigger(cmd.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				_ = f.Error("not_found", fmt.Sprintf("no file trigger %d", id))
				return NewExitError(ExitFailure, err.Error())
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "debug scan", err)
			}

			oracle := watcher.New()
			if _, err := oracle.Scan(ft.Path, ft.Recursive); err != nil {
				return WrapExitError(ExitCommandError, "debug scan", err)
			}
			changed, err := oracle.Scan(ft.Path, ft.Recursive)
			if err != nil {
				return WrapExitError(ExitCommandError, "debug scan", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"id": ft.ID, "path": ft.Path, "recursive": ft.Recursive, "changed": changed})
			}
			fmt.Fprintf(f.Writer, "Trigger %d: path %s (recursive=%t), changed between scans: %t\n",
				ft.ID, ft.Path, ft.Recursive, changed)
			return nil
		},
	}
}
