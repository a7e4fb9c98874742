package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"igmonitor/internal/runner"
	"igmonitor/pkg/collector"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
	"igmonitor/pkg/report"
	"igmonitor/pkg/ui"
	"igmonitor/pkg/ui/tui"
)

var (
	// monitor and collect flags
	assumeYes   bool
	useTUI      bool
	workers     int
	metricsAddr string
	maxNames    int
	notify      bool
	kindFlag    string
)

// monitorCmd runs the full collect-and-compare cycle
var monitorCmd = &cobra.Command{
	Use:   "monitor <subject>...",
	Short: "Collect followers and followees and report what changed",
	Long: `Collect the followers and then the followees of each subject, store a
snapshot of each completed collection and report the accounts added and
removed since the previous snapshot.

Collections are paced by the rate governor and checkpointed as they go. An
interrupted collection (Ctrl+C, throttling, a declined prompt) can be resumed
by running the same command again.`,
	Example: `  # Monitor one account
  igmonitor monitor johndoe

  # Several accounts, two at a time, with the dashboard
  igmonitor monitor alice bob carol --workers 2 --tui

  # Unattended: answer yes to every prompt, including throttling cool-downs
  igmonitor monitor johndoe --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMonitor,
}

// collectCmd runs a single collection
var collectCmd = &cobra.Command{
	Use:   "collect <subject>",
	Short: "Collect one relation of a subject without producing a report",
	Example: `  igmonitor collect johndoe --kind followees`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCollect,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(collectCmd)

	for _, cmd := range []*cobra.Command{monitorCmd, collectCmd} {
		cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "answer yes to every prompt")
		cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	}
	monitorCmd.Flags().BoolVar(&useTUI, "tui", false, "show the interactive terminal dashboard")
	monitorCmd.Flags().IntVarP(&workers, "workers", "w", 1, "subjects monitored concurrently")
	monitorCmd.Flags().IntVar(&maxNames, "max-names", 0, "names listed per change list (default from config)")
	monitorCmd.Flags().BoolVar(&notify, "notify", false, "send notifications about changes and failures")
	collectCmd.Flags().StringVarP(&kindFlag, "kind", "k", string(models.KindFollowers), "relation to collect (followers, followees)")
}

// dedupe normalizes subjects and drops repeats, keeping the first position
func dedupe(args []string) []string {
	seen := make(map[string]bool, len(args))
	var out []string
	for _, arg := range args {
		s := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(arg), "@"))
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	subjects := dedupe(args)

	if useTUI {
		return monitorWithTUI(ctx, cancel, subjects)
	}

	prompter := ui.NewPrompter(os.Stdin, console, cfg.Collection.AssumeYes)
	eng, err := newEngine(ctx, engineOptions{
		Collect:     true,
		Prompter:    prompter,
		Progress:    ui.NewProgressDisplay(console),
		Notifier:    ui.NewNotifier(cfg.Notifications, console, logger.GetLogger()),
		OnCountdown: prompter.Countdown,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	results := runner.RunAll(ctx, eng.monitor, subjects, workers, eng.log)
	return printOutcomes(console.Out, results)
}

// monitorWithTUI runs the subjects behind the dashboard. Prompts cannot be
// asked while the dashboard owns the terminal, so they are answered
// automatically.
func monitorWithTUI(ctx context.Context, cancel context.CancelFunc, subjects []string) error {
	if cfg.Logging.File == "" {
		console.PrintWarning("Logs are hidden while the dashboard runs; set logging.file to keep them")
	}
	log, err := logger.NewWithConsole(&cfg.Logging, io.Discard)
	if err != nil {
		return err
	}
	logger.SetLogger(log)

	dash := tui.NewTUI(subjects, tui.Options{OnQuit: cancel})
	eng, err := newEngine(ctx, engineOptions{
		Collect:     true,
		Prompter:    collector.AutoPrompter{AcceptCooldown: cfg.Collection.AssumeYes},
		Progress:    dash.Progress(),
		Notifier:    dash,
		OnUsage:     dash.UpdateRateLimit,
		OnCountdown: dash.Countdown,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	var (
		wg      sync.WaitGroup
		results []runner.Result
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results = runner.RunAll(ctx, eng.monitor, subjects, workers, eng.log)
		dash.Done()
	}()

	uiErr := dash.Start()
	// quitting the dashboard cancels the runs; wait for their checkpoints
	cancel()
	wg.Wait()
	if uiErr != nil {
		return uiErr
	}
	return printOutcomes(console.Out, results)
}

// printOutcomes renders each subject's report and returns the first error,
// or errIncomplete when a run ended early
func printOutcomes(w io.Writer, results []runner.Result) error {
	var firstErr error
	incomplete := false
	opts := report.Options{MaxNames: cfg.Output.MaxNames, Color: console.Color()}

	for _, res := range results {
		subject := res.Job.Subject
		if !res.Success() {
			console.PrintError("@"+subject, res.Error)
			if firstErr == nil {
				firstErr = res.Error
			}
			continue
		}

		out := res.Outcome
		if out.Status != models.StatusComplete {
			incomplete = true
			console.PrintWarning(fmt.Sprintf("@%s ended %s", subject, out.Status))
			for _, kind := range models.Kinds {
				if r, ok := out.Results[kind]; ok && !r.Complete() {
					console.PrintInfo("  "+string(kind), fmt.Sprintf("%d collected, checkpoint saved; run again to resume", r.Total()))
				}
			}
		}
		if out.Report != nil && !console.Quiet {
			fmt.Fprintln(w)
			if err := report.Render(w, out.Report, opts); err != nil {
				return err
			}
		}
	}

	if firstErr != nil {
		return firstErr
	}
	if incomplete {
		return errIncomplete
	}
	return nil
}

func runCollect(cmd *cobra.Command, args []string) error {
	kind := models.Kind(strings.ToLower(kindFlag))
	if !kind.Valid() {
		return fmt.Errorf("invalid --kind %q: use followers or followees", kindFlag)
	}

	prompter := ui.NewPrompter(os.Stdin, console, cfg.Collection.AssumeYes)
	eng, err := newEngine(cmd.Context(), engineOptions{
		Collect:     true,
		Prompter:    prompter,
		Progress:    ui.NewProgressDisplay(console),
		OnCountdown: prompter.Countdown,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.monitor.StartCollection(cmd.Context(), args[0], kind)
	if err != nil {
		return err
	}
	if !res.Complete() {
		console.PrintWarning(fmt.Sprintf("Collection ended %s with %d %s; run again to resume", res.Status, res.Total(), kind))
		return errIncomplete
	}
	console.PrintSuccess(fmt.Sprintf("Collected %d %s of @%s", res.Total(), kind, res.Subject))
	return nil
}
