package model

import "time"

// Classification messages.
const (
	MessageBaselineSet = "Baseline set"
	MessageSlouching   = "slouching"
	MessageHeadTilted  = "head tilted"
)

// Baseline is the calibrated reference posture.
type Baseline struct {
	ReferenceVerticalPosition float64 `json:"referenceVerticalPosition"`
	ReferenceTilt             float64 `json:"referenceTilt"` // radians
}

// PostureMetrics are recomputed for every frame and never stored.
type PostureMetrics struct {
	SlouchDelta      float64 `json:"slouchDelta"`
	TiltDeltaDegrees float64 `json:"tiltDeltaDegrees"`
	// NormalizedSlouch is slouchDelta/threshold floored at zero. It is not
	// capped at 1; clamp before rendering.
	NormalizedSlouch float64 `json:"normalizedSlouch"`
}

// Classification is the per-frame verdict of the analyzer.
// Metrics is nil for a neutral classification (reference points missing).
type Classification struct {
	IsBadPosture bool            `json:"isBadPosture"`
	Message      string          `json:"message"`
	Metrics      *PostureMetrics `json:"metrics,omitempty"`
}

// Neutral reports whether the frame carried no usable geometry.
func (c Classification) Neutral() bool {
	return c.Metrics == nil
}

// AlertState is the debounced alert signal.
// Active implies Since is the start of the bad-posture run that raised it.
type AlertState struct {
	Active  bool       `json:"active"`
	Since   *time.Time `json:"since,omitempty"`
	Message string     `json:"message"`
}
