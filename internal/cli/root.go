// Package cli implements the schedrt command line: the runner that loads a
// client plug-in, the built-in demo workload, and result-history queries.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/me/schedrt/internal/config"
)

// NewRootCmd builds the schedrt command tree.
func NewRootCmd() *cobra.Command {
	cfg := config.Default()
	var configFile string
	var appLib string

	root := &cobra.Command{
		Use:           "schedrt [flags] [-- app args]",
		Short:         "Heterogeneous task scheduler runtime",
		Long:          "schedrt dispatches application operations onto a pool of CPU workers and reconfigurable hardware slots.\nWith --app-lib it loads a client plug-in and drives its workload; see 'schedrt demo' for a built-in one.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				loaded, err := config.Load(configFile)
				if err != nil {
					return err
				}
				// Flags set explicitly win over the file.
				applyFlagOverrides(cmd, &loaded, &cfg)
				cfg = loaded
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(&cfg, appLib, args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to a YAML config file")
	pf.StringVar(&cfg.Backend, "backend", cfg.Backend, "Backend mode: auto, cpu, or fpga")
	pf.IntVar(&cfg.CPUWorkers, "cpu-workers", cfg.CPUWorkers, "Worker threads (0 = host concurrency)")
	pf.IntVar(&cfg.PreloadThreshold, "preload-threshold", cfg.PreloadThreshold, "Per-app demand that triggers an overlay preload (0 disables)")
	pf.BoolVar(&cfg.CSV, "csv", cfg.CSV, "Emit CSV result lines")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pf.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	pf.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "Status API listen address (empty = disabled)")
	pf.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Result history database path (empty = disabled)")

	root.Flags().StringVar(&appLib, "app-lib", "", "Path to the client application plug-in")

	root.AddCommand(newDemoCmd(&cfg))
	root.AddCommand(newResultsCmd(&cfg))
	return root
}

// applyFlagOverrides copies explicitly-set flag values over the file config.
func applyFlagOverrides(cmd *cobra.Command, loaded, flagCfg *config.RunnerConfig) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if set("backend") {
		loaded.Backend = flagCfg.Backend
	}
	if set("cpu-workers") {
		loaded.CPUWorkers = flagCfg.CPUWorkers
	}
	if set("preload-threshold") {
		loaded.PreloadThreshold = flagCfg.PreloadThreshold
	}
	if set("csv") {
		loaded.CSV = flagCfg.CSV
	}
	if set("log-level") {
		loaded.LogLevel = flagCfg.LogLevel
	}
	if set("log-format") {
		loaded.LogFormat = flagCfg.LogFormat
	}
	if set("status-addr") {
		loaded.StatusAddr = flagCfg.StatusAddr
	}
	if set("db") {
		loaded.DBPath = flagCfg.DBPath
	}
}
