//go:build !darwin && !linux

package notify

import "github.com/rs/zerolog"

// NewPlatformNotifier returns a no-op notifier on platforms without a
// supported notification mechanism.
func NewPlatformNotifier(enabled bool, log zerolog.Logger) Notifier {
	return NopNotifier{}
}
