package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"igmonitor/pkg/collector"
	"igmonitor/pkg/models"
	"igmonitor/pkg/report"
)

var _ collector.Prompter = (*Prompter)(nil)

// Prompter asks the collector's questions on a terminal. When the input is
// not a terminal, or the user passed --yes, questions are answered by a
// collector.AutoPrompter instead.
type Prompter struct {
	// Interactive selects reading answers from the input
	Interactive bool

	in       io.Reader
	out      io.Writer
	console  *Console
	fallback collector.AutoPrompter

	// prompts from concurrent runs are asked one at a time
	mu        sync.Mutex
	startOnce sync.Once
	lines     chan string
}

// NewPrompter creates a prompter reading from in. assumeYes answers every
// question, the cool-down included, without asking.
func NewPrompter(in io.Reader, console *Console, assumeYes bool) *Prompter {
	return &Prompter{
		Interactive: !assumeYes && IsTerminal(in),
		in:          in,
		out:         console.Out,
		console:     console,
		fallback:    collector.AutoPrompter{AcceptCooldown: assumeYes},
		lines:       make(chan string),
	}
}

// IsTerminal reports whether r is an interactive terminal
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readLines feeds lines from the input to p.lines until it is exhausted. A
// single reader is kept so an answer typed after a cancelled question is not
// lost to a stale goroutine.
func (p *Prompter) readLines() {
	scanner := bufio.NewScanner(p.in)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	close(p.lines)
}

// Confirm asks a yes/no question. An empty answer picks def; a cancelled
// context or closed input answers no.
func (p *Prompter) Confirm(ctx context.Context, question string, def bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startOnce.Do(func() { go p.readLines() })

	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for {
		fmt.Fprintf(p.out, "\n%s %s ", p.console.Yellow(question), p.console.Dim(hint))

		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return false
		case line, ok := <-p.lines:
			if !ok {
				fmt.Fprintln(p.out)
				return false
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "":
				return def
			case "y", "yes":
				return true
			case "n", "no":
				return false
			}
			fmt.Fprintln(p.out, p.console.Red("please answer y or n"))
		}
	}
}

func (p *Prompter) ConfirmResume(ctx context.Context, cp *models.Checkpoint) bool {
	if !p.Interactive {
		return p.fallback.ConfirmResume(ctx, cp)
	}
	age := report.FormatElapsed(time.Since(cp.SavedAt))
	return p.Confirm(ctx, fmt.Sprintf("Found an unfinished %s collection for @%s with %d accounts (saved %s ago). Resume it?",
		cp.Kind, cp.Subject, cp.Total, age), true)
}

func (p *Prompter) ConfirmLarge(ctx context.Context, subject string, kind models.Kind, estimate int) bool {
	if !p.Interactive {
		return p.fallback.ConfirmLarge(ctx, subject, kind, estimate)
	}
	return p.Confirm(ctx, fmt.Sprintf("@%s has about %d %s. Collecting them will take a while. Continue?",
		subject, estimate, kind), false)
}

func (p *Prompter) ConfirmContinue(ctx context.Context, subject string, kind models.Kind, collected int) bool {
	if !p.Interactive {
		return p.fallback.ConfirmContinue(ctx, subject, kind, collected)
	}
	return p.Confirm(ctx, fmt.Sprintf("Collected %d %s of @%s so far. Keep going?", collected, kind, subject), true)
}

func (p *Prompter) ConfirmCooldown(ctx context.Context, wait time.Duration, cause error) bool {
	if !p.Interactive {
		return p.fallback.ConfirmCooldown(ctx, wait, cause)
	}
	fmt.Fprintf(p.out, "\n%s %v\n", p.console.Red("Instagram is throttling requests:"), cause)
	return p.Confirm(ctx, fmt.Sprintf("Wait %s and retry?", report.FormatElapsed(wait)), true)
}

// Countdown prints the remaining cool-down on a single line. It matches the
// signature of the governor's OnCountdown hook.
func (p *Prompter) Countdown(remaining time.Duration) {
	if p.console.Quiet {
		return
	}
	if remaining <= 0 {
		fmt.Fprintf(p.out, "\r%s\r%s\n", strings.Repeat(" ", 60), p.console.Green("cool-down finished, resuming"))
		return
	}
	fmt.Fprintf(p.out, "\r%s %s ", p.console.Yellow("cooling down:"), formatDuration(remaining))
}

// ReadSecret reads a line without echo when in is a terminal
func ReadSecret(in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return ReadLine(in)
}

// ReadLine reads a single trimmed line from in
func ReadLine(in io.Reader) (string, error) {
	var b strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			b.WriteByte(buf[0])
		}
		if err == io.EOF {
			if b.Len() == 0 {
				return "", io.EOF
			}
			break
		}
		if err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(b.String()), nil
}
