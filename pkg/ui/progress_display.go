package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"igmonitor/pkg/collector"
	"igmonitor/pkg/models"
)

var _ collector.Progress = (*ProgressDisplay)(nil)

type progressEntry struct {
	estimate int
	seeded   int
	total    int
	start    time.Time
}

// ProgressDisplay provides a clean, minimal progress line per collection.
// Concurrent collections share the line; the most recently advanced one is
// shown.
type ProgressDisplay struct {
	mu      sync.Mutex
	console *Console
	entries map[string]*progressEntry
	now     func() time.Time
}

// NewProgressDisplay creates a new progress display
func NewProgressDisplay(console *Console) *ProgressDisplay {
	return &ProgressDisplay{
		console: console,
		entries: make(map[string]*progressEntry),
		now:     time.Now,
	}
}

func progressKey(subject string, kind models.Kind) string {
	return subject + "/" + string(kind)
}

// Start marks the start of a collection
func (p *ProgressDisplay) Start(subject string, kind models.Kind, estimate, seeded int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries[progressKey(subject, kind)] = &progressEntry{
		estimate: estimate,
		seeded:   seeded,
		total:    seeded,
		start:    p.now(),
	}
	if p.console.Quiet {
		return
	}
	msg := fmt.Sprintf("Collecting %s of @%s (about %d)", kind, subject, estimate)
	if seeded > 0 {
		msg += fmt.Sprintf(", resuming from %d", seeded)
	}
	fmt.Fprintf(p.console.Out, "%s %s\n", p.console.Magenta("→"), msg)
}

// Advance records the running total of a collection
func (p *ProgressDisplay) Advance(subject string, kind models.Kind, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[progressKey(subject, kind)]
	if !ok {
		return
	}
	e.total = total
	if !p.console.Quiet {
		p.printProgress(subject, kind, e)
	}
}

// Finish prints the outcome of a collection
func (p *ProgressDisplay) Finish(subject string, kind models.Kind, status models.Status, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := progressKey(subject, kind)
	e, ok := p.entries[key]
	delete(p.entries, key)
	if p.console.Quiet {
		return
	}

	elapsed := time.Duration(0)
	if ok {
		elapsed = p.now().Sub(e.start)
	}
	mark := p.console.Green("✓")
	if status != models.StatusComplete {
		mark = p.console.Yellow("⚠")
	}
	fmt.Fprintf(p.console.Out, "\r%s\r%s %d %s of @%s %s in %s\n",
		strings.Repeat(" ", 100), mark, total, kind, subject, p.console.Dim(string(status)), formatDuration(elapsed))
}

// printProgress prints the minimal progress line
func (p *ProgressDisplay) printProgress(subject string, kind models.Kind, e *progressEntry) {
	fmt.Fprintf(p.console.Out, "\r%s\r%s", strings.Repeat(" ", 100), p.line(subject, kind, e))
}

func (p *ProgressDisplay) line(subject string, kind models.Kind, e *progressEntry) string {
	elapsed := p.now().Sub(e.start)
	fresh := e.total - e.seeded
	rate := 0.0
	if elapsed > 0 {
		rate = float64(fresh) / elapsed.Minutes()
	}

	return fmt.Sprintf("%s %s [%s] %d/%d • %.1f/min • %s",
		p.console.Cyan("@"+subject),
		kind,
		bar(e.total, e.estimate, 20),
		e.total,
		e.estimate,
		rate,
		eta(fresh, e.estimate-e.total, elapsed),
	)
}

// bar draws done out of total in width cells. The estimate may be stale, so
// done is clamped to total.
func bar(done, total, width int) string {
	filled := 0
	if total > 0 {
		if done > total {
			done = total
		}
		filled = done * width / total
	}
	return strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
}

// eta estimates time remaining from the fresh items collected so far
func eta(fresh, remaining int, elapsed time.Duration) string {
	if fresh <= 0 || elapsed <= 0 {
		return "calculating..."
	}
	if remaining <= 0 {
		return "finishing"
	}
	perItem := elapsed / time.Duration(fresh)
	return formatDuration(perItem * time.Duration(remaining))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
