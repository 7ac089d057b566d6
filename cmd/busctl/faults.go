package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/eventbus/pkg/eventbus/faultlog"
)

func newFaultsCmd(opts *options) *cobra.Command {
	faultsCmd := &cobra.Command{
		Use:   "faults",
		Short: "Inspect the subscriber fault journal",
		RunE: func(*cobra.Command, []string) error {
			return fmt.Errorf("faults requires a subcommand: list|clear")
		},
	}

	var (
		limit     int
		eventType string
		asJSON    bool
	)
	list := &cobra.Command{
		Use:     "list",
		Short:   "List recorded faults, newest first",
		Example: "  busctl faults list --limit 20\n  busctl faults list --event-type main.Coin --json",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := faultlog.NewSQLiteStore(opts.faultsPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var entries []faultlog.Entry
			if eventType != "" {
				entries, err = store.ListByEventType(eventType, limit)
			} else {
				entries, err = store.List(limit)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tOCCURRED\tBUS\tSUBSCRIBER\tEVENT\tMESSAGE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.OccurredAt.Format("2006-01-02T15:04:05Z"), orDash(e.Bus), e.Subscriber, e.EventType, e.Message)
			}
			return w.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "Maximum entries (0 for all)")
	list.Flags().StringVar(&eventType, "event-type", "", "Only faults for this event type")
	list.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded fault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := faultlog.NewSQLiteStore(opts.faultsPath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Count()
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d faults\n", n)
			return nil
		},
	}

	faultsCmd.AddCommand(list, clearCmd)
	return faultsCmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
