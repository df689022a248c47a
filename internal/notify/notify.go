// Package notify sends desktop notifications when a quota window enters
// alert, so the warning lands even when the terminal is buried.
package notify

// Notification is one alert message.
type Notification struct {
	Title    string
	Body     string
	Critical bool
}

// Notifier delivers notifications. Implementations must not block the
// caller; delivery happens on a background goroutine.
type Notifier interface {
	Notify(n Notification)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}
