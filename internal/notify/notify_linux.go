//go:build linux

package notify

import (
	"os/exec"

	"github.com/rs/zerolog"
)

// NotifySendNotifier sends Linux desktop notifications via notify-send.
type NotifySendNotifier struct {
	enabled bool
	log     zerolog.Logger
}

// NewPlatformNotifier creates the platform-appropriate notifier for
// Linux. When enabled is false, notifications are silently dropped.
func NewPlatformNotifier(enabled bool, log zerolog.Logger) Notifier {
	return &NotifySendNotifier{enabled: enabled, log: log.With().Str("component", "notify").Logger()}
}

// Notify returns immediately; the notify-send command runs in a
// background goroutine and delivery errors are only logged.
func (n *NotifySendNotifier) Notify(msg Notification) {
	if !n.enabled {
		return
	}
	urgency := "normal"
	if msg.Critical {
		urgency = "critical"
	}
	go func() {
		if err := sendNotifySend(msg.Title, msg.Body, urgency); err != nil {
			n.log.Warn().Err(err).Msg("desktop notification failed")
		}
	}()
}

func sendNotifySend(title, body, urgency string) error {
	cmd := exec.Command("notify-send", "--urgency", urgency, "--app-name", "burnbar", title, body)
	return cmd.Run()
}
