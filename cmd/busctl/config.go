package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type settingsView struct {
	FaultPolicy     string `json:"fault_policy"`
	Debug           bool   `json:"debug"`
	InitialCapacity int    `json:"initial_capacity"`
	PoolSize        int    `json:"pool_size"`
	MaxForwardDepth int    `json:"max_forward_depth"`
	SlowSubscriber  string `json:"slow_subscriber"`
	GlobalName      string `json:"global_name"`
}

func newConfigCmd(opts *options) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect bus settings",
		RunE: func(*cobra.Command, []string) error {
			return fmt.Errorf("config requires a subcommand: show")
		},
	}

	show := &cobra.Command{
		Use:     "show",
		Short:   "Print the effective settings as JSON",
		Example: "  busctl config show --config bus.yaml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.settings()
			if err != nil {
				return err
			}
			view := settingsView{
				FaultPolicy:     s.FaultPolicy.String(),
				Debug:           s.Debug,
				InitialCapacity: s.InitialCapacity,
				PoolSize:        s.PoolSize,
				MaxForwardDepth: s.MaxForwardDepth,
				SlowSubscriber:  s.SlowSubscriber.String(),
				GlobalName:      s.GlobalName,
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}

	configCmd.AddCommand(show)
	return configCmd
}
