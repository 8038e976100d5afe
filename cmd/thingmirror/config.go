package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"thingmirror/pkg/config"
	"thingmirror/pkg/ui"
)

var (
	forceInit  bool
	showFormat string
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage thingmirror configuration files.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (THINGMIRROR_*)
  - .env files
  - Configuration file (YAML or TOML)
  - Default values`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with default values",
	Long: `Write a configuration file holding every option at its default value.
The format follows the extension: .toml for TOML, anything else for YAML.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after merging all sources. The API token is masked.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)

	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")
	showCmd.Flags().StringVar(&showFormat, "format", "yaml", "output format: yaml or toml")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = config.DefaultPath()
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.Success("Configuration file created: " + path)
	fmt.Fprintln(printer.Writer(), "\nNext steps:")
	fmt.Fprintln(printer.Writer(), "1. Store an API token with 'thingmirror auth login' or set api.token")
	fmt.Fprintln(printer.Writer(), "2. Run 'thingmirror config validate' to check the file")
	fmt.Fprintln(printer.Writer(), "3. Start mirroring with 'thingmirror mirror'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	format := strings.ToLower(showFormat)
	if format != "yaml" && format != "toml" {
		return fmt.Errorf("unknown format %q", showFormat)
	}

	data, err := cfg.Redacted().Encode("config." + format)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.Highlight("Current Configuration")
	fmt.Fprintln(printer.Writer())
	fmt.Fprint(printer.Writer(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	printer := ui.NewPrinter(cmd.OutOrStdout())
	if configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err == nil {
			printer.Info("Validating configuration", abs)
		}
	}

	if _, err := config.Load(configFile, globalFlags()); err != nil {
		printer.Error("Configuration is invalid", err)
		return err
	}

	printer.Success("Configuration is valid")
	return nil
}
