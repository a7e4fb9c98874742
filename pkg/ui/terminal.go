package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔═══════════════════════════════════════════════╗
    ║  ██╗ ██████╗   ███╗   ███╗ ██████╗ ███╗   ██╗   ║
    ║  ██║██╔════╝   ████╗ ████║██╔═══██╗████╗  ██║   ║
    ║  ██║██║  ███╗  ██╔████╔██║██║   ██║██╔██╗ ██║   ║
    ║  ██║██║   ██║  ██║╚██╔╝██║██║   ██║██║╚██╗██║   ║
    ║  ██║╚██████╔╝  ██║ ╚═╝ ██║╚██████╔╝██║ ╚████║   ║
    ║  ╚═╝ ╚═════╝   ╚═╝     ╚═╝ ╚═════╝ ╚═╝  ╚═══╝   ║
    ║        FOLLOWER CHANGE MONITOR                  ║
    ╚═══════════════════════════════════════════════╝
`

// Console writes styled messages to a pair of writers. Output is plain when
// color is disabled; Quiet suppresses everything except errors.
type Console struct {
	Out   io.Writer
	Err   io.Writer
	Quiet bool

	color bool
}

// NewConsole creates a console on stdout and stderr
func NewConsole(color, quiet bool) *Console {
	return &Console{Out: os.Stdout, Err: os.Stderr, Quiet: quiet, color: color}
}

// Color reports whether styling is enabled
func (c *Console) Color() bool {
	return c.color
}

func (c *Console) style(fg string, bold bool) func(string) string {
	if !c.color {
		return func(s string) string { return s }
	}
	st := lipgloss.NewStyle().Foreground(lipgloss.Color(fg)).Bold(bold)
	return func(s string) string { return st.Render(s) }
}

// Color functions for terminal output
func (c *Console) Cyan(s string) string    { return c.style("14", false)(s) }
func (c *Console) Yellow(s string) string  { return c.style("11", false)(s) }
func (c *Console) Red(s string) string     { return c.style("9", true)(s) }
func (c *Console) Green(s string) string   { return c.style("10", false)(s) }
func (c *Console) Magenta(s string) string { return c.style("13", false)(s) }

// Dim renders s faint
func (c *Console) Dim(s string) string {
	if !c.color {
		return s
	}
	return lipgloss.NewStyle().Faint(true).Render(s)
}

// PrintLogo prints the ASCII logo
func (c *Console) PrintLogo() {
	if c.Quiet {
		return
	}
	fmt.Fprint(c.Out, c.Cyan(ASCIILogo))
}

// PrintError prints an error message in red
func (c *Console) PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(c.Err, c.Red(msg))
}

// PrintSuccess prints a success message in green
func (c *Console) PrintSuccess(msg string) {
	if c.Quiet {
		return
	}
	fmt.Fprintln(c.Out, c.Green(msg))
}

// PrintInfo prints a label and value pair
func (c *Console) PrintInfo(label string, value string) {
	if c.Quiet {
		return
	}
	fmt.Fprintf(c.Out, "%s: %s\n", c.Cyan(label), c.Yellow(value))
}

// PrintWarning prints a warning message in yellow
func (c *Console) PrintWarning(msg string, args ...interface{}) {
	if c.Quiet {
		return
	}
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(c.Out, c.Yellow(msg))
}

// PrintHighlight prints a highlighted message in magenta
func (c *Console) PrintHighlight(msg string) {
	if c.Quiet {
		return
	}
	fmt.Fprintln(c.Out, c.Magenta(msg))
}
