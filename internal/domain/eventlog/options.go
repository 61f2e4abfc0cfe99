package eventlog

import (
	"time"

	"github.com/okian/posture/pkg/logger"
)

// Option applies a configuration option to the EventLogger.
type Option func(*EventLogger)

// WithCooldown sets the minimum gap between forwarded submissions.
func WithCooldown(d time.Duration) Option {
	return func(l *EventLogger) {
		if d >= 0 {
			l.cooldown = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *EventLogger) {
		if lg != nil {
			l.logger = lg
		}
	}
}
