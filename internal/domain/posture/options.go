package posture

// Option applies a configuration option to the Analyzer.
type Option func(*Analyzer)

// WithSlouchThreshold sets the nose drop, in normalized units, treated as slouching.
func WithSlouchThreshold(threshold float64) Option {
	return func(a *Analyzer) {
		if threshold > 0 {
			a.slouchThreshold = threshold
		}
	}
}

// WithTiltThreshold sets the eye-line rotation, in radians, treated as a tilted head.
func WithTiltThreshold(radians float64) Option {
	return func(a *Analyzer) {
		if radians > 0 {
			a.tiltThreshold = radians
		}
	}
}
