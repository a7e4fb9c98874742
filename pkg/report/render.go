package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"igmonitor/pkg/models"
)

// DefaultMaxNames caps each rendered name list
const DefaultMaxNames = 10

// Options controls text rendering of a report
type Options struct {
	MaxNames int
	Color    bool
}

type palette struct {
	title, added, removed, dim func(string) string
}

func newPalette(color bool) palette {
	if !color {
		plain := func(s string) string { return s }
		return palette{title: plain, added: plain, removed: plain, dim: plain}
	}
	return palette{
		title:   render(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))),
		added:   render(lipgloss.NewStyle().Foreground(lipgloss.Color("10"))),
		removed: render(lipgloss.NewStyle().Foreground(lipgloss.Color("9"))),
		dim:     render(lipgloss.NewStyle().Faint(true)),
	}
}

func render(st lipgloss.Style) func(string) string {
	return func(s string) string { return st.Render(s) }
}

// Render writes a human readable version of rep to w
func Render(w io.Writer, rep *models.DiffReport, opts Options) error {
	if rep == nil {
		_, err := fmt.Fprintln(w, "No report available")
		return err
	}
	if opts.MaxNames <= 0 {
		opts.MaxNames = DefaultMaxNames
	}
	p := newPalette(opts.Color)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.title("Report for @"+rep.Subject))
	fmt.Fprintf(&b, "%s\n", p.dim("Generated "+rep.CreatedAt.Local().Format("2006-01-02 15:04:05")))

	if rep.FirstCollection {
		b.WriteString("First collection: baseline saved, changes will be reported from the next run\n")
	} else if rep.PreviousAt != nil && rep.CurrentAt != nil {
		fmt.Fprintf(&b, "Time since previous snapshot: %s\n", FormatElapsed(rep.CurrentAt.Sub(*rep.PreviousAt)))
	}

	for _, kind := range models.Kinds {
		b.WriteString("\n")
		renderKind(&b, kind, rep.Changes(kind), opts.MaxNames, p)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderKind(b *strings.Builder, kind models.Kind, ch *models.KindChanges, max int, p palette) {
	title := strings.ToUpper(string(kind[:1])) + string(kind[1:])
	if ch == nil {
		fmt.Fprintf(b, "%s: %s\n", title, p.dim("not collected in this run"))
		return
	}
	if ch.Baseline {
		fmt.Fprintf(b, "%s: %d (baseline)\n", title, ch.CurrentCount)
		return
	}

	fmt.Fprintf(b, "%s: %d -> %d (%+d)\n", title, ch.PreviousCount, ch.CurrentCount, ch.Net)
	if !ch.HasChanges() {
		fmt.Fprintf(b, "  %s\n", p.dim("no changes"))
		return
	}
	renderNames(b, "New", "+", ch.Added, max, p.added)
	renderNames(b, "Gone", "-", ch.Removed, max, p.removed)
}

func renderNames(b *strings.Builder, label, sign string, names []string, max int, style func(string) string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s (%d):\n", label, len(names))
	shown, rest := Truncate(names, max)
	for _, name := range shown {
		fmt.Fprintf(b, "    %s\n", style(sign+" @"+name))
	}
	if rest > 0 {
		fmt.Fprintf(b, "    ... and %d more\n", rest)
	}
}

// Truncate returns at most max names and how many were left out
func Truncate(names []string, max int) ([]string, int) {
	if max <= 0 || len(names) <= max {
		return names, 0
	}
	return names[:max], len(names) - max
}

// FormatElapsed renders d as "2 days, 3 hours", "4 hours, 5 minutes" or "7 minutes"
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	switch {
	case days > 0:
		return plural(days, "day") + ", " + plural(hours, "hour")
	case hours > 0:
		return plural(hours, "hour") + ", " + plural(minutes, "minute")
	default:
		return plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
