package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"igmonitor/pkg/config"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/monitor"
)

var _ monitor.Notifier = (*Notifier)(nil)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %s with title %s`, appleQuote(message), appleQuote(title))
	return exec.Command("osascript", "-e", script).Run()
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$xml = @"
<toast>
	<visual>
		<binding template="ToastText02">
			<text id="1">%s</text>
			<text id="2">%s</text>
		</binding>
	</visual>
</toast>
"@
		$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
		$doc.LoadXml($xml)
		$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("igmonitor").Show($toast)
	`, xmlEscape(title), xmlEscape(message))

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

func xmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(s)
}

// PlatformSender returns the sender for the current platform, or nil when
// desktop notifications are unsupported
func PlatformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	default:
		return nil
	}
}

// Notifier reports finished runs on the console and, for the desktop
// notification type, through the platform sender
type Notifier struct {
	cfg     config.NotificationConfig
	console *Console
	sender  NotificationSender
	logger  logger.Logger
}

// NewNotifier creates a Notifier from the notification settings. It returns
// nil when notifications are disabled, which the monitor accepts.
func NewNotifier(cfg config.NotificationConfig, console *Console, log logger.Logger) *Notifier {
	if !cfg.Enabled || strings.EqualFold(cfg.NotificationType, "none") {
		return nil
	}
	if log == nil {
		log = logger.GetLogger()
	}
	n := &Notifier{cfg: cfg, console: console, logger: log}
	if strings.EqualFold(cfg.NotificationType, "desktop") {
		n.sender = PlatformSender()
	}
	return n
}

// WithSender replaces the platform sender
func (n *Notifier) WithSender(s NotificationSender) *Notifier {
	n.sender = s
	return n
}

// Changes is called when a run stored a report with changes
func (n *Notifier) Changes(subject, summary string) {
	if n == nil || !n.cfg.OnChanges {
		return
	}
	n.send("@"+subject+" changed", summary, n.console.Cyan, n.console.Yellow)
}

// Failure is called when a run failed or ended incomplete
func (n *Notifier) Failure(subject string, err error) {
	if n == nil {
		return
	}
	if errs.Classify(err) == errs.KindThrottled {
		if !n.cfg.OnRateLimit {
			return
		}
		n.send("@"+subject+" throttled", err.Error(), n.console.Yellow, n.console.Yellow)
		return
	}
	if !n.cfg.OnError {
		return
	}
	n.send("@"+subject+" failed", err.Error(), n.console.Red, n.console.Red)
}

func (n *Notifier) send(title, message string, titleStyle, msgStyle func(string) string) {
	if n.sender == nil {
		fmt.Fprintf(n.console.Out, "\n%s: %s\n", titleStyle(title), msgStyle(message))
		return
	}
	if err := n.sender.Send(title, message); err != nil {
		n.logger.DebugWithFields("desktop notification failed", map[string]interface{}{
			"error": err.Error(),
		})
		fmt.Fprintf(n.console.Out, "\n%s: %s\n", titleStyle(title), msgStyle(message))
	}
}
