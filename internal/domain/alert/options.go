package alert

import "time"

// Option applies a configuration option to the Machine.
type Option func(*Machine)

// WithPersistenceThreshold sets the minimum bad-posture run before activation.
// Negative values are ignored.
func WithPersistenceThreshold(d time.Duration) Option {
	return func(m *Machine) {
		if d >= 0 {
			m.threshold = d
		}
	}
}
