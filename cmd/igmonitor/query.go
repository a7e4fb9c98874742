package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"igmonitor/pkg/models"
	"igmonitor/pkg/report"
	"igmonitor/pkg/ui"
)

var refresh bool

var reportCmd = &cobra.Command{
	Use:   "report <subject>",
	Short: "Show the latest change report of a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cmd.Context(), engineOptions{})
		if err != nil {
			return err
		}
		defer eng.Close()

		rep, err := eng.monitor.GetLatestDiff(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return renderReport(rep, args[0])
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <subject>",
	Short: "Recompute a report from the two newest stored snapshots",
	Long: `Recompute the change report of a subject from the two most recent stored
snapshots of each relation, without contacting Instagram. Nothing is saved.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cmd.Context(), engineOptions{})
		if err != nil {
			return err
		}
		defer eng.Close()

		rep, err := eng.monitor.Compare(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return renderReport(rep, args[0])
	},
}

func renderReport(rep *models.DiffReport, subject string) error {
	if rep == nil {
		console.PrintWarning("Nothing stored for @" + strings.TrimPrefix(subject, "@") + " yet; run 'igmonitor monitor' first")
		return nil
	}
	return report.Render(console.Out, rep, report.Options{MaxNames: cfg.Output.MaxNames, Color: console.Color()})
}

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "List the subjects with stored records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cmd.Context(), engineOptions{})
		if err != nil {
			return err
		}
		defer eng.Close()

		subjects, err := eng.monitor.ListSubjects(cmd.Context())
		if err != nil {
			return err
		}
		if len(subjects) == 0 {
			console.PrintInfo("No subjects", "use 'igmonitor monitor <subject>' to start")
			return nil
		}
		for _, s := range subjects {
			fmt.Fprintln(console.Out, s)
		}
		return nil
	},
}

var mutualCmd = &cobra.Command{
	Use:   "mutual <a> <b>",
	Short: "List the followers two subjects have in common",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := engineOptions{}
		if refresh {
			prompter := ui.NewPrompter(os.Stdin, console, cfg.Collection.AssumeYes)
			opts = engineOptions{
				Collect:     true,
				Prompter:    prompter,
				Progress:    ui.NewProgressDisplay(console),
				OnCountdown: prompter.Countdown,
			}
		}
		eng, err := newEngine(cmd.Context(), opts)
		if err != nil {
			return err
		}
		defer eng.Close()

		res, err := eng.monitor.Mutual(cmd.Context(), args[0], args[1], refresh)
		if err != nil {
			return err
		}

		console.PrintHighlight(fmt.Sprintf("%d followers shared by @%s and @%s", len(res.Mutual), res.A, res.B))
		printNames(res.Mutual)
		return nil
	},
}

var connectionsCmd = &cobra.Command{
	Use:   "connections <subject>",
	Short: "Analyse the overlap of a subject's followers and followees",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cmd.Context(), engineOptions{})
		if err != nil {
			return err
		}
		defer eng.Close()

		conn, err := eng.monitor.Connections(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		console.PrintHighlight("Connections of @" + conn.Subject)
		console.PrintInfo("Followers", fmt.Sprintf("%d", conn.Followers))
		console.PrintInfo("Following", fmt.Sprintf("%d", conn.Followees))
		console.PrintInfo("Reciprocity", fmt.Sprintf("%.1f%%", conn.Reciprocity))

		fmt.Fprintf(console.Out, "\n%s (%d)\n", console.Cyan("Mutual"), len(conn.Mutual))
		printNames(conn.Mutual)
		fmt.Fprintf(console.Out, "\n%s (%d)\n", console.Cyan("Not following back"), len(conn.NotFollowingBack))
		printNames(conn.NotFollowingBack)
		fmt.Fprintf(console.Out, "\n%s (%d)\n", console.Cyan("Fans"), len(conn.Fans))
		printNames(conn.Fans)
		return nil
	},
}

// printNames lists names capped at output.max_names
func printNames(names []string) {
	shown, more := report.Truncate(names, cfg.Output.MaxNames)
	for _, n := range shown {
		fmt.Fprintf(console.Out, "  @%s\n", n)
	}
	if more > 0 {
		fmt.Fprintln(console.Out, console.Dim(fmt.Sprintf("  ... and %d more", more)))
	}
}

var treeCmd = &cobra.Command{
	Use:   "tree <subject>",
	Short: "Show the stored snapshots, checkpoints and reports of a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cmd.Context(), engineOptions{})
		if err != nil {
			return err
		}
		defer eng.Close()

		tree, err := eng.monitor.Tree(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		const stamp = "2006-01-02 15:04:05"
		w := tabwriter.NewWriter(console.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "@%s\n", tree.Subject)
		for _, kt := range tree.Kinds {
			fmt.Fprintf(w, "├── %s\n", kt.Kind)
			for _, s := range kt.Snapshots {
				fmt.Fprintf(w, "│   ├── snapshot\t%s\t%d accounts\n", s.CompletedAt.Local().Format(stamp), s.Total)
			}
			if len(kt.Snapshots) == 0 {
				fmt.Fprintf(w, "│   ├── (no snapshots)\n")
			}
			if cp := kt.Checkpoint; cp != nil {
				fmt.Fprintf(w, "│   └── checkpoint\t%s\t%d accounts (%s)\n", cp.SavedAt.Local().Format(stamp), cp.Total, cp.Status)
			}
		}
		fmt.Fprintf(w, "└── reports\n")
		for _, r := range tree.Reports {
			fmt.Fprintf(w, "    ├── %s\t%s\n", r.CreatedAt.Local().Format(stamp), reportSummary(r))
		}
		return w.Flush()
	},
}

func reportSummary(r *models.DiffReport) string {
	if r.FirstCollection {
		return "first collection"
	}
	var parts []string
	for _, kind := range models.Kinds {
		if ch := r.Changes(kind); ch != nil {
			parts = append(parts, fmt.Sprintf("%s +%d -%d", kind, len(ch.Added), len(ch.Removed)))
		}
	}
	return strings.Join(parts, ", ")
}

var cleanCmd = &cobra.Command{
	Use:   "clean [subject]",
	Short: "Delete the stored records of one subject, or of every subject",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject := ""
		question := "Delete the records of EVERY subject? This cannot be undone."
		if len(args) == 1 {
			subject = args[0]
			question = fmt.Sprintf("Delete every snapshot, checkpoint and report of @%s?", strings.TrimPrefix(subject, "@"))
		}

		if !assumeYes {
			prompter := ui.NewPrompter(os.Stdin, console, false)
			prompter.Interactive = true
			if !prompter.Confirm(cmd.Context(), question, false) {
				console.PrintInfo("Aborted", "nothing was deleted")
				return nil
			}
		}

		eng, err := newEngine(cmd.Context(), engineOptions{})
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.monitor.Clean(cmd.Context(), subject); err != nil {
			return err
		}
		console.PrintSuccess("Records deleted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd, compareCmd, subjectsCmd, mutualCmd, connectionsCmd, treeCmd, cleanCmd)

	mutualCmd.Flags().BoolVar(&refresh, "refresh", false, "collect both subjects' followers first")
	mutualCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "answer yes to every prompt")
	cleanCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation")
}
