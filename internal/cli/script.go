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

// scriptRow is the JSON shape for script output.
type scriptRow struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// NewScriptCommand creates the script verb group.
func NewScriptCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Register and inspect scripts",
	}
	cmd.AddCommand(newScriptAddCommand(rootOpts))
	cmd.AddCommand(newScriptListCommand(rootOpts))
	cmd.AddCommand(newScriptShowCommand(rootOpts))
	return cmd
}

func newScriptAddCommand(rootOpts *RootOptions) *cobra.Command {
	var workingDir string

	cmd := &cobra.Command{
		Use:           "add <name> <command>",
		Short:         "Register a new script",
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

			id, err := st.AddScript(cmd.Context(), args[0], args[1], workingDir)
			if errors.Is(err, store.ErrConflict) {
				_ = f.Error("conflict", fmt.Sprintf("script %q already exists", args[0]))
				return NewExitError(ExitFailure, err.Error())
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "add script", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"id": id, "name": args[0]})
			}
			fmt.Fprintf(f.Writer, "Added script %q (id %d)\n", args[0], id)
			return nil
		},
	}
	cmd.Flags().StringVar(&workingDir, "cwd", "", "working directory for the script (default: daemon cwd)")
	return cmd
}

func newScriptListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List registered scripts",
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

			scripts, err := st.ListScripts(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "list scripts", err)
			}

			if f.JSON() {
				rows := make([]scriptRow, 0, len(scripts))
				for _, sc := range scripts {
					rows = append(rows, scriptRow{
						ID: sc.ID, Name: sc.Name, Command: sc.Command,
						WorkingDir: sc.WorkingDir, CreatedAt: sc.CreatedAt,
					})
				}
				return f.SuccessJSON(rows)
			}

			if len(scripts) == 0 {
				fmt.Fprintln(f.Writer, "No scripts registered.")
				return nil
			}
			w := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCOMMAND\tCWD")
			for _, sc := range scripts {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", sc.ID, sc.Name, sc.Command, sc.WorkingDir)
			}
			return w.Flush()
		},
	}
}

func newScriptShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id|name>",
		Short:         "Show one script",
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

			sc, err := resolveScript(cmd, st, args[0])
			if errors.Is(err, store.ErrNotFound) {
				_ = f.Error("not_found", fmt.Sprintf("no script %q", args[0]))
				return NewExitError(ExitFailure, err.Error())
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "show script", err)
			}

			if f.JSON() {
				return f.SuccessJSON(scriptRow{
					ID: sc.ID, Name: sc.Name, Command: sc.Command,
					WorkingDir: sc.WorkingDir, CreatedAt: sc.CreatedAt,
				})
			}
			fmt.Fprintf(f.Writer, "Script %d: %s\n", sc.ID, sc.Name)
			fmt.Fprintf(f.Writer, "  Command: %s\n", sc.Command)
			if sc.WorkingDir != "" {
				fmt.Fprintf(f.Writer, "  Cwd:     %s\n", sc.WorkingDir)
			}
			fmt.Fprintf(f.Writer, "  Created: %s\n", timefmt.ToLocalDisplay(sc.CreatedAt))
			return nil
		},
	}
}

// resolveScript accepts a numeric id or a script name.
func resolveScript(cmd *cobra.Command, st *store.Store, ref string) (*store.Script, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return st.GetScript(cmd.Context(), id)
	}
	return st.GetScriptByName(cmd.Context(), ref)
}
