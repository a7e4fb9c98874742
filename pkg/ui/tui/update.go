package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"igmonitor/pkg/models"
)

// Message types for the TUI

// CollectionStartMsg is sent when a collection starts
type CollectionStartMsg struct {
	Subject  string
	Kind     models.Kind
	Estimate int
	Seeded   int
}

// CollectionProgressMsg is sent with the running total of a collection
type CollectionProgressMsg struct {
	Subject string
	Kind    models.Kind
	Total   int
}

// CollectionFinishMsg is sent when a collection ends, complete or not
type CollectionFinishMsg struct {
	Subject string
	Kind    models.Kind
	Status  models.Status
	Total   int
}

// RateLimitUpdateMsg is sent to update rate limit status
type RateLimitUpdateMsg struct {
	Used    int
	Max     int
	ResetAt time.Time
}

// CooldownMsg carries the remaining throttling cool-down
type CooldownMsg struct {
	Remaining time.Duration
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// DoneMsg is sent once every run has returned
type DoneMsg struct{}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case CollectionStartMsg:
		m.StartCollection(msg.Subject, msg.Kind, msg.Estimate, msg.Seeded)
		text := fmt.Sprintf("Collecting %s of @%s (about %d)", msg.Kind, msg.Subject, msg.Estimate)
		if msg.Seeded > 0 {
			text += fmt.Sprintf(", resuming from %d", msg.Seeded)
		}
		m.AddLogMessage("INFO", text)
		return m, nil

	case CollectionProgressMsg:
		m.AdvanceCollection(msg.Subject, msg.Kind, msg.Total)
		return m, nil

	case CollectionFinishMsg:
		m.FinishCollection(msg.Subject, msg.Kind, msg.Status, msg.Total)
		level := "SUCCESS"
		if msg.Status != models.StatusComplete {
			level = "WARN"
		}
		m.AddLogMessage(level, fmt.Sprintf("%d %s of @%s: %s", msg.Total, msg.Kind, msg.Subject, msg.Status))
		return m, nil

	case RateLimitUpdateMsg:
		m.UpdateRateLimit(msg.Used, msg.Max, msg.ResetAt)
		return m, nil

	case CooldownMsg:
		m.mu.RLock()
		starting := m.cooldownRemaining == 0 && msg.Remaining > 0
		m.mu.RUnlock()
		m.UpdateCooldown(msg.Remaining)
		switch {
		case starting:
			m.AddLogMessage("WARN", "Throttled, cooling down for "+formatDuration(msg.Remaining))
		case msg.Remaining == 0:
			m.AddLogMessage("INFO", "Cool-down finished, resuming")
		}
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil

	case DoneMsg:
		m.done = true
		m.AddLogMessage("SUCCESS", "All runs finished, press q to exit")
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.onQuit != nil {
			m.onQuit()
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logMessages = nil
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
