package tui

import "github.com/charmbracelet/lipgloss"

// palette
var (
	neonCyan    = lipgloss.Color("#00E5FF")
	neonMagenta = lipgloss.Color("#E040FB")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFEA00")
	neonOrange  = lipgloss.Color("#FF9100")
	neonRed     = lipgloss.Color("#FF1744")
	dimWhite    = lipgloss.Color("#B0B0B0")
	bgColor     = lipgloss.Color("#0B1021")
	panelBg     = lipgloss.Color("#161B33")
	mutedGray   = lipgloss.Color("#5C5C70")
)

// frame
var (
	baseStyle = lipgloss.NewStyle().Background(bgColor).Foreground(dimWhite)

	logoStyle = lipgloss.NewStyle().Foreground(neonCyan).Bold(true).
			Padding(1, 0).Align(lipgloss.Center)

	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
			BorderForeground(neonMagenta).Background(panelBg).Padding(1, 2)

	titleStyle = lipgloss.NewStyle().Background(neonMagenta).Foreground(bgColor).
			Bold(true).Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(mutedGray).Padding(1, 0, 0, 2)
)

// panel content
var (
	labelStyle    = lipgloss.NewStyle().Foreground(neonCyan).Bold(true)
	valueStyle    = lipgloss.NewStyle().Foreground(neonYellow)
	rateStyle     = lipgloss.NewStyle().Foreground(neonCyan)
	emptyBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2E2E3A"))

	successStyle  = lipgloss.NewStyle().Foreground(neonGreen).Bold(true)
	warningStyle  = lipgloss.NewStyle().Foreground(neonOrange).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(neonRed).Bold(true)
	cooldownStyle = errorStyle.Blink(true)

	pendingRowStyle  = lipgloss.NewStyle().PaddingLeft(2)
	activeRowStyle   = lipgloss.NewStyle().Foreground(neonGreen).Bold(true)
	finishedRowStyle = lipgloss.NewStyle().Foreground(dimWhite).Faint(true).PaddingLeft(2)

	logTimeStyle = lipgloss.NewStyle().Foreground(mutedGray)
	logTextStyle = lipgloss.NewStyle().Foreground(dimWhite)
)

// windowStyle colors the governor's window usage, in percent
func windowStyle(usage float64) lipgloss.Style {
	style := lipgloss.NewStyle().Foreground(neonGreen)
	switch {
	case usage >= 90:
		style = style.Foreground(neonRed)
	case usage >= 70:
		style = style.Foreground(neonOrange)
	}
	return style
}
