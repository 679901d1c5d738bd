package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/scripter/internal/config"
	"github.com/roach88/scripter/internal/runner"
	"github.com/roach88/scripter/internal/scheduler"
	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/webhook"
)

// NewWebhookCommand creates the webhook verb group.
func NewWebhookCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Expose scripts over HTTP",
	}
	cmd.AddCommand(newWebhookAddCommand(rootOpts))
	cmd.AddCommand(newWebhookListCommand(rootOpts))
	cmd.AddCommand(newWebhookRemoveCommand(rootOpts))
	cmd.AddCommand(newWebhookServeCommand(rootOpts))
	return cmd
}

func newWebhookAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "add <name> <script>",
		Short:         "Map a webhook name to a script",
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

			sc, err := resolveScript(cmd, st, args[1])
			if errors.Is(err, store.ErrNotFound) {
				_ = f.Error("not_found", fmt.Sprintf("no script %q", args[1]))
				return NewExitError(ExitFailure, err.Error())
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "add webhook", err)
			}

			id, err := st.AddWebhook(cmd.Context(), args[0], sc.ID)
			if errors.Is(err, store.ErrConflict) {
				_ = f.Error("conflict", fmt.Sprintf("webhook %q already exists", args[0]))
				return NewExitError(ExitFailure, err.Error())
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "add webhook", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"id": id, "name": args[0], "script": sc.Name})
			}
			fmt.Fprintf(f.Writer, "Added webhook %q for %s (POST /trigger/%s)\n", args[0], sc.Name, args[0])
			return nil
		},
	}
}

func newWebhookListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List webhooks",
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

			webhooks, err := st.ListWebhooks(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "list webhooks", err)
			}

			if f.JSON() {
				type webhookRow struct {
					ID     int64  `json:"id"`
					Name   string `json:"name"`
					Script string `json:"script"`
				}
				rows := make([]webhookRow, 0, len(webhooks))
				for _, wh := range webhooks {
					rows = append(rows, webhookRow{ID: wh.ID, Name: wh.Name, Script: wh.ScriptName})
				}
				return f.SuccessJSON(rows)
			}

			if len(webhooks) == 0 {
				fmt.Fprintln(f.Writer, "No webhooks.")
				return nil
			}
			w := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSCRIPT")
			for _, wh := range webhooks {
				fmt.Fprintf(w, "%d\t%s\t%s\n", wh.ID, wh.Name, wh.ScriptName)
			}
			return w.Flush()
		},
	}
}

func newWebhookRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <name>",
		Short:         "Remove a webhook",
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

			if err := st.RemoveWebhook(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					_ = f.Error("not_found", fmt.Sprintf("no webhook %q", args[0]))
					return NewExitError(ExitFailure, err.Error())
				}
				return WrapExitError(ExitCommandError, "remove webhook", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"removed": args[0]})
			}
			fmt.Fprintf(f.Writer, "Removed webhook %q\n", args[0])
			return nil
		},
	}
}

func newWebhookServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		addr       string
		configPath string
	)

	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Serve webhooks over HTTP until interrupted",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			settings, err := config.LoadSettings(configPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "webhook serve", err)
			}
			if addr == "" {
				addr = settings.WebhookAddr()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc := runner.New(st, scheduler.Owner(), settings.ExecTimeout())
			srv := webhook.NewServer(st, svc)
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				return WrapExitError(ExitCommandError, "webhook serve", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from settings, 127.0.0.1:8611)")
	cmd.Flags().StringVar(&configPath, "config", "", "settings file")
	return cmd
}
