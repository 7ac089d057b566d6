package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

// options holds the persistent flags.
type options struct {
	logLevel   string
	configPath string
	faultsPath string

	logger *slog.Logger
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "busctl",
		Short:         "Benchmark the event bus and inspect subscriber faults",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := parseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("BUSCTL_LOG_LEVEL", "warn"), "Log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("BUSCTL_CONFIG"), "Settings file (.yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&opts.faultsPath, "faults", envOr("BUSCTL_FAULTS", "eventbus-faults.db"), "SQLite fault journal")

	root.AddCommand(newBenchCmd(opts), newFaultsCmd(opts), newConfigCmd(opts))
	return root
}

// settings loads --config, or the defaults when it is empty.
func (o *options) settings() (eventbus.Settings, error) {
	if o.configPath == "" {
		return eventbus.DefaultSettings(), nil
	}
	return eventbus.LoadSettings(o.configPath)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
