package notify

import "errors"

// Sentinel errors for notifier sinks.
var (
	ErrNotConnected = errors.New("mqtt not connected")
	ErrPublish      = errors.New("mqtt publish failed")
)
