package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/timefmt"
)

// NewBusCommand creates the event bus verb group.
func NewBusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bus",
		Short: "Publish and subscribe on the internal event bus",
	}
	cmd.AddCommand(newBusPublishCommand(rootOpts))
	cmd.AddCommand(newBusSubscribeCommand(rootOpts))
	cmd.AddCommand(newBusTopicsCommand(rootOpts))
	cmd.AddCommand(newBusDeliveriesCommand(rootOpts))
	return cmd
}

func newBusPublishCommand(rootOpts *RootOptions) *cobra.Command {
	var payload string

	cmd := &cobra.Command{
		Use:           "publish <topic>",
		Short:         "Publish an event on a topic",
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

			if payload != "" && !json.Valid([]byte(payload)) {
				return NewExitError(ExitCommandError, "payload must be valid JSON")
			}

			id, err := st.PublishEvent(cmd.Context(), args[0], payload)
			if err != nil {
				return WrapExitError(ExitCommandError, "publish event", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"event_id": id, "topic": args[0]})
			}
			fmt.Fprintf(f.Writer, "Published event %d on %q\n", id, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload attached to the event")
	return cmd
}

func newBusSubscribeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "subscribe <topic> <script>",
		Short:         "Run a script whenever a topic receives an event",
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
				return WrapExitError(ExitCommandError, "subscribe", err)
			}

			id, err := st.Subscribe(cmd.Context(), args[0], sc.ID)
			if err != nil {
				return WrapExitError(ExitCommandError, "subscribe", err)
			}

			if f.JSON() {
				return f.SuccessJSON(map[string]any{"subscription_id": id, "topic": args[0], "script": sc.Name})
			}
			fmt.Fprintf(f.Writer, "Subscription %d: %q runs %s\n", id, args[0], sc.Name)
			return nil
		},
	}
}

func newBusTopicsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "topics",
		Short:         "List subscriptions by topic",
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

			subs, err := st.ListSubscriptions(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "list subscriptions", err)
			}

			if f.JSON() {
				type subRow struct {
					ID     int64  `json:"id"`
					Topic  string `json:"topic"`
					Script string `json:"script"`
				}
				rows := make([]subRow, 0, len(subs))
				for _, s := range subs {
					rows = append(rows, subRow{ID: s.ID, Topic: s.Topic, Script: s.ScriptName})
				}
				return f.SuccessJSON(rows)
			}

			if len(subs) == 0 {
				fmt.Fprintln(f.Writer, "No subscriptions.")
				return nil
			}
			w := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTOPIC\tSCRIPT")
			for _, s := range subs {
				fmt.Fprintf(w, "%d\t%s\t%s\n", s.ID, s.Topic, s.ScriptName)
			}
			return w.Flush()
		},
	}
}

func newBusDeliveriesCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "deliveries",
		Short:         "Inspect delivery state, newest first",
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

			deliveries, err := st.ListDeliveries(cmd.Context(), limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "list deliveries", err)
			}

			if f.JSON() {
				type deliveryRow struct {
					ID          int64  `json:"id"`
					EventID     int64  `json:"event_id"`
					ClaimedBy   string `json:"claimed_by,omitempty"`
					ProcessedAt string `json:"processed_at_utc,omitempty"`
				}
				rows := make([]deliveryRow, 0, len(deliveries))
				for _, d := range deliveries {
					rows = append(rows, deliveryRow{ID: d.ID, EventID: d.EventID, ClaimedBy: d.ClaimedBy, ProcessedAt: d.ProcessedAtUTC})
				}
				return f.SuccessJSON(rows)
			}

			if len(deliveries) == 0 {
				fmt.Fprintln(f.Writer, "No deliveries.")
				return nil
			}
			w := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEVENT\tCLAIMED BY\tPROCESSED")
			for _, d := range deliveries {
				state := ""
				if d.ProcessedAtUTC != "" {
					state = timefmt.ToLocalDisplay(d.ProcessedAtUTC)
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", d.ID, d.EventID, d.ClaimedBy, state)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum deliveries to show")
	return cmd
}
