package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"igmonitor/pkg/config"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
	dataDir    string
	backend    string
	account    string

	// set up by PersistentPreRunE
	cfg     *config.Config
	console *ui.Console
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igmonitor",
	Short: "Track who follows and unfollows an Instagram account",
	Long: `igmonitor collects the followers and followees of Instagram accounts,
keeps a snapshot of every collection and reports what changed since the
previous one.

Features:
  - Rate governor with jitter, batch pauses and a throttling cool-down
  - Resumable collections checkpointed to disk or SQLite
  - Added/removed reports, mutual followers and connection analysis
  - Secure session storage using the system keychain
  - Terminal dashboard and desktop notifications`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configFile, flagOverrides(cmd))
		if err != nil {
			return err
		}
		cfg = loaded

		if !cmd.Flags().Changed("log-level") && cfg.Logging.Level == "info" {
			switch {
			case verbose:
				cfg.Logging.Level = "debug"
			case !useTUI:
				// keep the progress line clean
				cfg.Logging.Level = "warn"
			}
		}
		if err := logger.Initialize(&cfg.Logging); err != nil {
			return err
		}

		console = ui.NewConsole(cfg.Output.Color, cfg.Output.Quiet)
		if verbose && cmd.Name() != "version" && cmd.Name() != "help" {
			console.PrintLogo()
		}
		return nil
	},
}

// flagOverrides collects the global flags the user actually set
func flagOverrides(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := func(name string, value interface{}) {
		if cmd.Flags().Changed(name) {
			flags[name] = value
		}
	}
	set("log-level", logLevel)
	set("no-color", noColor)
	set("quiet", quiet)
	set("data-dir", dataDir)
	set("backend", backend)
	set("account", account)
	set("yes", assumeYes)
	set("metrics-addr", metricsAddr)
	set("max-names", maxNames)
	set("notify", notify)
	return flags
}

// Execute adds all child commands to the root command and runs it. An
// interrupt cancels the command's context so collections can checkpoint.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if errors.Is(err, errAlreadyReported) {
			os.Exit(1)
		}
		if console != nil {
			console.PrintError("Error", err)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy to process exit codes
func exitCode(err error) int {
	switch errs.Classify(err) {
	case errs.KindValidation:
		return 2
	case errs.KindAccess:
		return 3
	case errs.KindThrottled:
		return 4
	case errs.KindCancelled:
		return 130
	}
	if errors.Is(err, errIncomplete) {
		return 5
	}
	return 1
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file (default is the igmonitor config directory)")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
	pf.BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	pf.BoolVarP(&verbose, "verbose", "v", false, "show all output (logo, logs, progress)")
	pf.StringVar(&dataDir, "data-dir", "", "directory holding snapshots, checkpoints and reports")
	pf.StringVar(&backend, "backend", "", "storage backend (file, sqlite)")
	pf.StringVarP(&account, "account", "a", "", "use a specific stored Instagram session")

	rootCmd.SetVersionTemplate(`igmonitor {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
