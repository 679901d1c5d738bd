package cli

import (
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/spf13/cobra"

	"github.com/roach88/scripter/internal/config"
	"github.com/roach88/scripter/internal/runner"
	"github.com/roach88/scripter/internal/scheduler"
	"github.com/roach88/scripter/internal/trigger"
	"github.com/roach88/scripter/internal/webhook"
)

// NewDaemonCommand creates the daemon command: the scheduler loop plus,
// optionally, the webhook listener, in one process.
func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		once       bool
		serveHooks bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:           "daemon",
		Short:         "Run the trigger loop until interrupted",
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
				return WrapExitError(ExitCommandError, "daemon", err)
			}

			owner := scheduler.Owner()
			svc := runner.New(st, owner, settings.ExecTimeout())
			sources := []trigger.Source{
				trigger.NewScheduleSource(nil),
				trigger.NewOneShotSource(nil),
				trigger.NewEventBusSource(owner),
				trigger.NewFileWatchSource(settings.FileQuiet(), settings.FileMinInterval(), nil),
			}
			sched := scheduler.New(st, svc, owner, settings.Tick(), sources)

			if once {
				sched.RunOnce(cmd.Context())
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return sched.Run(ctx) })
			if serveHooks {
				srv := webhook.NewServer(st, svc)
				g.Go(func() error { return srv.ListenAndServe(ctx, settings.WebhookAddr()) })
			}
			if err := g.Wait(); err != nil {
				return WrapExitError(ExitCommandError, "daemon", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single tick and exit")
	cmd.Flags().BoolVar(&serveHooks, "webhooks", false, "also serve webhooks (settings webhook_host/port)")
	cmd.Flags().StringVar(&configPath, "config", "", "settings file")
	return cmd
}
