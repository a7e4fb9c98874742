package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igmonitor/pkg/auth"
	"igmonitor/pkg/config"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/ui"
)

const exampleHeader = `# igmonitor configuration
#
# Every option is shown with its default value. Environment variables
# prefixed with IGMONITOR_ override this file, and command line flags
# override both. For example: IGMONITOR_DATA_DIR, IGMONITOR_LOG_LEVEL.
#
# Durations accept Go syntax: 90s, 10m, 1h30m.

`

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igmonitor configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (IGMONITOR_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
	// the subcommands load the configuration themselves so a broken file
	// can still be inspected or replaced
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		console = ui.NewConsole(!noColor, quiet)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created in the current directory as '.igmonitor.yaml' unless a
different path is given with the --config flag.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Data and log directory accessibility
  - Whether a session is stored for the configured account`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".igmonitor.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		console.PrintError("Configuration file already exists", path)
		fmt.Fprintf(console.Out, "\nTo overwrite, first remove the existing file:\n  rm %s\n", path)
		return errAlreadyReported
	}

	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append([]byte(exampleHeader), data...), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	console.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(console.Out, "\nNext steps:")
	fmt.Fprintln(console.Out, "1. Adjust the pacing and storage options if needed")
	fmt.Fprintln(console.Out, "2. Run 'igmonitor config validate' to check the configuration")
	fmt.Fprintln(console.Out, "3. Store a session with 'igmonitor auth login'")
	fmt.Fprintln(console.Out, "4. Start monitoring with 'igmonitor monitor <username>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configFile, flagOverrides(cmd))
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(loaded)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	console.PrintHighlight("Current Configuration")
	fmt.Fprintln(console.Out)
	fmt.Fprint(console.Out, string(data))

	fmt.Fprintln(console.Out, "\nConfiguration sources (in order of priority):")
	fmt.Fprintln(console.Out, "1. Command line flags")
	fmt.Fprintln(console.Out, "2. Environment variables (IGMONITOR_*)")
	if configFile != "" {
		fmt.Fprintf(console.Out, "3. Configuration file: %s\n", configFile)
	} else {
		fmt.Fprintln(console.Out, "3. Configuration file: (searched in the default locations)")
	}
	fmt.Fprintln(console.Out, "4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		console.PrintInfo("Validating configuration", configFile)
	}

	loaded, err := config.Load(configFile, flagOverrides(cmd))
	if err != nil {
		return err
	}

	var warnings, problems []string

	if err := os.MkdirAll(loaded.Storage.DataDir, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create data directory: %v", err))
	}
	if loaded.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(loaded.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	if loaded.RateLimit.Cooldown < loaded.RateLimit.Window {
		warnings = append(warnings, "cooldown is shorter than the rate window; throttling may repeat")
	}
	if !hasSession(loaded.Source.Account) {
		warnings = append(warnings, "no stored session; requests will be anonymous (run 'igmonitor auth login')")
	}

	if len(problems) > 0 {
		console.PrintError("Configuration has errors")
		for _, p := range problems {
			fmt.Fprintf(console.Err, "  - %s\n", p)
		}
		return errAlreadyReported
	}

	if len(warnings) > 0 {
		console.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Fprintf(console.Out, "  - %s\n", w)
		}
		fmt.Fprintln(console.Out)
	}

	console.PrintSuccess("Configuration is valid")

	fmt.Fprintln(console.Out, "\nConfiguration summary:")
	fmt.Fprintf(console.Out, "  Storage: %s in %s (keep %d reports)\n", loaded.Storage.Backend, loaded.Storage.DataDir, loaded.Storage.Retention)
	fmt.Fprintf(console.Out, "  Rate limit: %d requests per %s, cooldown %s\n", loaded.RateLimit.RequestsPerWindow, loaded.RateLimit.Window, loaded.RateLimit.Cooldown)
	fmt.Fprintf(console.Out, "  Checkpoint every: %d accounts\n", loaded.Collection.CheckpointEvery)
	fmt.Fprintf(console.Out, "  Log level: %s\n", loaded.Logging.Level)
	return nil
}

func hasSession(account string) bool {
	dir, err := auth.DefaultDir()
	if err != nil {
		return false
	}
	manager, err := auth.NewManager(dir, logger.GetLogger())
	if err != nil {
		return false
	}
	_, err = manager.RetrieveDefault(account)
	return err == nil
}
