package tui

import (
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"igmonitor/pkg/collector"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/models"
	"igmonitor/pkg/monitor"
)

var (
	_ collector.Progress = progressAdapter{}
	_ monitor.Notifier   = (*TUI)(nil)
)

// Options configure the dashboard
type Options struct {
	// OnQuit is called when the user quits, before the program exits
	OnQuit func()
	Input  io.Reader
	Output io.Writer
	// Inline renders without the alternate screen
	Inline bool
}

// TUI represents the terminal user interface
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a dashboard for a monitor run over subjects
func NewTUI(subjects []string, opts Options) *TUI {
	model := NewModel(subjects)
	model.onQuit = opts.OnQuit

	var popts []tea.ProgramOption
	if !opts.Inline {
		popts = append(popts, tea.WithAltScreen())
	}
	if opts.Input != nil {
		popts = append(popts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		popts = append(popts, tea.WithOutput(opts.Output))
	}

	return &TUI{
		program: tea.NewProgram(model, popts...),
		model:   model,
	}
}

// Start runs the TUI until the user quits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// Done tells the dashboard every run has returned
func (t *TUI) Done() {
	t.Send(DoneMsg{})
}

// StartCollection marks a collection as started
func (t *TUI) StartCollection(subject string, kind models.Kind, estimate, seeded int) {
	t.Send(CollectionStartMsg{Subject: subject, Kind: kind, Estimate: estimate, Seeded: seeded})
}

// Progress adapts the dashboard to the collector's progress port
func (t *TUI) Progress() collector.Progress {
	return progressAdapter{t}
}

// Advance records the running total of a collection
func (t *TUI) Advance(subject string, kind models.Kind, total int) {
	t.Send(CollectionProgressMsg{Subject: subject, Kind: kind, Total: total})
}

// Finish records the outcome of a collection
func (t *TUI) Finish(subject string, kind models.Kind, status models.Status, total int) {
	t.Send(CollectionFinishMsg{Subject: subject, Kind: kind, Status: status, Total: total})
}

// UpdateRateLimit updates the governor usage. It matches the governor's
// OnUsage hook.
func (t *TUI) UpdateRateLimit(used, max int, resetAt time.Time) {
	t.Send(RateLimitUpdateMsg{Used: used, Max: max, ResetAt: resetAt})
}

// Countdown updates the cool-down display. It matches the governor's
// OnCountdown hook.
func (t *TUI) Countdown(remaining time.Duration) {
	t.Send(CooldownMsg{Remaining: remaining})
}

// Changes implements monitor.Notifier
func (t *TUI) Changes(subject, summary string) {
	t.LogSuccess("@%s changed: %s", subject, summary)
}

// Failure implements monitor.Notifier
func (t *TUI) Failure(subject string, err error) {
	if errs.Classify(err) == errs.KindThrottled {
		t.LogWarning("@%s: %v", subject, err)
		return
	}
	t.LogError("@%s: %v", subject, err)
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

// LogSuccess logs a success message
func (t *TUI) LogSuccess(format string, args ...interface{}) {
	t.Log("SUCCESS", format, args...)
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log("WARN", format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}

// progressAdapter maps the collector's Start onto StartCollection; TUI's own
// Start runs the program
type progressAdapter struct{ t *TUI }

func (p progressAdapter) Start(subject string, kind models.Kind, estimate, seeded int) {
	p.t.StartCollection(subject, kind, estimate, seeded)
}

func (p progressAdapter) Advance(subject string, kind models.Kind, total int) {
	p.t.Advance(subject, kind, total)
}

func (p progressAdapter) Finish(subject string, kind models.Kind, status models.Status, total int) {
	p.t.Finish(subject, kind, status, total)
}
