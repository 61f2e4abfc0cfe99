// Package posture classifies head posture from facial landmarks against a
// calibrated baseline.
//
// An Analyzer is driven by a single frame stream: Analyze must not be called
// concurrently. Calibrate may be called from any goroutine.
package posture

import (
	"math"
	"sync/atomic"

	"github.com/okian/posture/internal/domain/model"
)

// Default classification thresholds.
const (
	DefaultSlouchThreshold = 0.05               // normalized frame units
	DefaultTiltThreshold   = 15 * math.Pi / 180 // radians
	radiansToDegrees       = 180 / math.Pi
)

// Analyzer turns landmark frames into classifications.
type Analyzer struct {
	slouchThreshold float64
	tiltThreshold   float64

	// armed is the only state shared with other goroutines.
	armed    atomic.Bool
	baseline *model.Baseline
}

// New creates an Analyzer with default thresholds.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		slouchThreshold: DefaultSlouchThreshold,
		tiltThreshold:   DefaultTiltThreshold,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Calibrate arms a one-shot recalibration: the next analyzed frame becomes the
// baseline. Repeated calls before that frame collapse into one.
func (a *Analyzer) Calibrate() {
	a.armed.Store(true)
}

// Baseline returns the current baseline, if one has been captured.
func (a *Analyzer) Baseline() (model.Baseline, bool) {
	if a.baseline == nil {
		return model.Baseline{}, false
	}
	return *a.baseline, true
}

// Analyze classifies one frame. A frame without the reference points yields
// a neutral classification and leaves the baseline untouched.
func (a *Analyzer) Analyze(frame model.LandmarkFrame) model.Classification {
	nose, leftEye, rightEye, ok := frame.References()
	if !ok {
		return model.Classification{}
	}

	vertical := nose.Y
	tilt := math.Atan2(rightEye.Y-leftEye.Y, rightEye.X-leftEye.X)

	// Swap consumes the flag so a concurrent Calibrate is applied exactly once.
	if a.armed.Swap(false) || a.baseline == nil {
		a.baseline = &model.Baseline{
			ReferenceVerticalPosition: vertical,
			ReferenceTilt:             tilt,
		}
		return model.Classification{
			Message: model.MessageBaselineSet,
			Metrics: &model.PostureMetrics{},
		}
	}

	slouchDelta := vertical - a.baseline.ReferenceVerticalPosition
	tiltDelta := math.Abs(tilt - a.baseline.ReferenceTilt)

	c := model.Classification{
		Metrics: &model.PostureMetrics{
			SlouchDelta:      slouchDelta,
			TiltDeltaDegrees: tiltDelta * radiansToDegrees,
			NormalizedSlouch: math.Max(0, slouchDelta/a.slouchThreshold),
		},
	}
	switch {
	case slouchDelta > a.slouchThreshold:
		c.IsBadPosture = true
		c.Message = model.MessageSlouching
	case tiltDelta > a.tiltThreshold:
		c.IsBadPosture = true
		c.Message = model.MessageHeadTilted
	}
	return c
}
