//go:build darwin

package notify

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// OSAScriptNotifier sends macOS system notifications via osascript.
type OSAScriptNotifier struct {
	enabled bool
	log     zerolog.Logger
}

// NewPlatformNotifier creates the platform-appropriate notifier for
// macOS. When enabled is false, notifications are silently dropped.
func NewPlatformNotifier(enabled bool, log zerolog.Logger) Notifier {
	return &OSAScriptNotifier{enabled: enabled, log: log.With().Str("component", "notify").Logger()}
}

// Notify returns immediately; the osascript command runs in a background
// goroutine and delivery errors are only logged.
func (o *OSAScriptNotifier) Notify(n Notification) {
	if !o.enabled {
		return
	}
	go func() {
		if err := sendOSANotification(n.Title, n.Body); err != nil {
			o.log.Warn().Err(err).Msg("macOS notification failed")
		}
	}()
}

func sendOSANotification(title, message string) error {
	script := fmt.Sprintf(
		`display notification "%s" with title "%s"`,
		escapeAppleScript(message), escapeAppleScript(title),
	)
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

// escapeAppleScript escapes characters that could break AppleScript strings.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
