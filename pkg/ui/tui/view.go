package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const logo = `
╔═══════════════════════════════════════════════╗
║  ██╗ ██████╗   ███╗   ███╗ ██████╗ ███╗   ██╗   ║
║  ██║██╔════╝   ████╗ ████║██╔═══██╗████╗  ██║   ║
║  ██║██║  ███╗  ██╔████╔██║██║   ██║██╔██╗ ██║   ║
║  ██║██║   ██║  ██║╚██╔╝██║██║   ██║██║╚██╗██║   ║
║  ██║╚██████╔╝  ██║ ╚═╝ ██║╚██████╔╝██║ ╚████║   ║
║  ╚═╝ ╚═════╝   ╚═╝     ╚═╝ ╚═════╝ ╚═╝  ╚═══╝   ║
╚═══════════════════════════════════════════════╝`

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, logoStyle.Width(m.width).Render(logo))

	mainContent := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderLeftColumn(),
		"  ",
		m.renderRightColumn(),
	)
	sections = append(sections, mainContent)

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help, q to quit"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) columnWidth() int {
	return (m.width - 4) / 2
}

// renderLeftColumn renders the left side of the UI
func (m *Model) renderLeftColumn() string {
	width := m.columnWidth()
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(width),
		m.renderActivePanel(width),
		m.renderQueuePanel(width),
	)
}

// renderRightColumn renders the right side of the UI
func (m *Model) renderRightColumn() string {
	width := m.columnWidth()
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderRateLimitPanel(width),
		m.renderLogsPanel(width),
	)
}

func statLine(label, value string) string {
	return fmt.Sprintf("%s %s", labelStyle.Render(label), valueStyle.Render(value))
}

// renderStatsPanel renders the statistics panel
func (m *Model) renderStatsPanel(width int) string {
	title := titleStyle.Render(" SESSION ")
	st := m.GetStats()

	stats := []string{
		statLine("Session Time:", formatDuration(st.Elapsed)),
		statLine("Collections:", fmt.Sprintf("%d/%d finished, %d active", st.Finished, st.Total, st.Active)),
		statLine("Accounts Fetched:", fmt.Sprintf("%d", st.Collected)),
		fmt.Sprintf("%s %s", labelStyle.Render("Rate:"), rateStyle.Render(fmt.Sprintf("%.1f/min", st.Rate))),
	}
	if m.done {
		stats = append(stats, successStyle.Render("✓ DONE"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

// renderActivePanel renders the collections in progress
func (m *Model) renderActivePanel(width int) string {
	title := titleStyle.Render(" ACTIVE COLLECTIONS ")
	active := m.GetActiveCollections()

	if len(active) == 0 {
		content := lipgloss.NewStyle().Foreground(dimWhite).Render("No active collections")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	var rows []string
	for i := range active {
		rows = append(rows, m.renderCollectionItem(&active[i], width-4))
	}
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, rows...)),
	)
}

// renderCollectionItem renders a single collection with progress bar
func (m *Model) renderCollectionItem(item *CollectionItem, width int) string {
	m.mu.RLock()
	bar, ok := m.progressBars[item.Key]
	now := m.now()
	m.mu.RUnlock()
	if !ok {
		return ""
	}

	info := fmt.Sprintf("%s %s %s @ %s",
		m.spinner.View(),
		activeRowStyle.Render("@"+item.Subject+" "+string(item.Kind)),
		lipgloss.NewStyle().Foreground(dimWhite).Render(fmt.Sprintf("%d/%d", item.Total, item.Estimate)),
		rateStyle.Render(fmt.Sprintf("%.1f/min", item.Rate(now))),
	)

	if w := width - 20; w > 10 {
		bar.Width = w
	}
	return lipgloss.JoinVertical(lipgloss.Left, info, bar.ViewAs(item.Ratio()))
}

// renderQueuePanel renders pending and finished collections
func (m *Model) renderQueuePanel(width int) string {
	title := titleStyle.Render(" QUEUE ")
	pending := m.GetPendingCollections()
	finished := m.GetFinishedCollections()

	var items []string
	if n := len(pending); n > 0 {
		items = append(items, warningStyle.Render(fmt.Sprintf("⏳ %d pending", n)))
		for i := 0; i < 3 && i < n; i++ {
			items = append(items, pendingRowStyle.Render("• @"+pending[i].Subject+" "+string(pending[i].Kind)))
		}
		if n > 3 {
			items = append(items, lipgloss.NewStyle().Foreground(dimWhite).Render(fmt.Sprintf("  ... and %d more", n-3)))
		}
	}

	if n := len(finished); n > 0 {
		items = append(items, "", successStyle.Render(fmt.Sprintf("✓ %d finished", n)))
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, item := range finished[start:] {
			line := fmt.Sprintf("@%s %s: %d", item.Subject, item.Kind, item.Total)
			if item.State == CollectionIncomplete {
				items = append(items, pendingRowStyle.Render(errorStyle.Render("✗ "+line+" ("+string(item.Status)+")")))
				continue
			}
			items = append(items, finishedRowStyle.Render("✓ "+line))
		}
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

// renderRateLimitPanel renders the governor's window usage and any cool-down
func (m *Model) renderRateLimitPanel(width int) string {
	m.mu.RLock()
	used, max := m.rateLimitUsed, m.rateLimitMax
	resetIn := m.rateLimitResetAt.Sub(m.now())
	cooldown := m.cooldownRemaining
	m.mu.RUnlock()

	title := titleStyle.Render(" RATE GOVERNOR ")

	usage := 0.0
	if max > 0 {
		usage = float64(used) / float64(max) * 100
	}
	barWidth := width - 8
	if barWidth < 1 {
		barWidth = 1
	}
	filled := int(usage * float64(barWidth) / 100)
	if filled > barWidth {
		filled = barWidth
	}

	barStyle := windowStyle(usage)
	bar := barStyle.Render(strings.Repeat("█", filled)) +
		emptyBarStyle.Render(strings.Repeat("░", barWidth-filled))

	if resetIn < 0 {
		resetIn = 0
	}
	content := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("Window:"),
			barStyle.Render(fmt.Sprintf("%d/%d (%.0f%%)", used, max, usage))),
		bar,
		statLine("Reset in:", formatDuration(resetIn)),
	}
	if cooldown > 0 {
		content = append(content, cooldownStyle.Render("⏸  COOLING DOWN "+formatDuration(cooldown)))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(content, "\n")),
	)
}

// renderLogsPanel renders the logs panel
func (m *Model) renderLogsPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	maxMsgLen := width - 25
	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimeStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))

		text := log.Message
		if maxMsgLen > 3 && len(text) > maxMsgLen {
			text = text[:maxMsgLen-3] + "..."
		}
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, logTextStyle.Render(text)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(dimWhite).Render("No messages yet...")
	}

	logsHeight := m.height - 35
	if logsHeight < 5 {
		logsHeight = 5
	}
	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

// renderHelp renders the help panel
func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Stop collecting and quit (progress is checkpointed)
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Status Indicators:
    ` + successStyle.Render("Green") + `    - Complete/Healthy
    ` + warningStyle.Render("Orange") + `   - Pending/Near the request limit
    ` + errorStyle.Render("Red") + `      - Incomplete/Throttled
`
	return panelStyle.Width(m.width).Render(help)
}

// formatDuration formats a duration as a clock
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
