package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"thingmirror/pkg/config"
	"thingmirror/pkg/logger"
)

var (
	// Version information
	version   = "0.1.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	logFile    string
	verbosity  int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "thingmirror",
	Short: "Mirror Thingiverse things to a local directory",
	Long: `thingmirror walks Thingiverse thing ids in ascending order and stores each
thing's metadata, display images and files under an output directory.

Several workers fetch things concurrently. Progress is checkpointed as the
highest id below which every thing has been handled, so an interrupted run
resumes without skipping anything.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.thingmirror.yaml or ~/.config/thingmirror/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug, -vvv trace)")

	rootCmd.SetVersionTemplate(`thingmirror {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags returns the persistent flags in the form config.Load expects.
// An explicit --log-level wins over -v.
func globalFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	switch {
	case logLevel != "":
		flags["log-level"] = logLevel
	case verbosity > 0:
		flags["log-level"] = logger.LevelForVerbosity(verbosity)
	}
	if logFile != "" {
		flags["log-file"] = logFile
	}
	return flags
}

// loadConfig loads configuration with the global flags merged into flags
// and initializes the global logger from it.
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	merged := globalFlags()
	for k, v := range flags {
		merged[k] = v
	}

	cfg, err := config.Load(configFile, merged)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
