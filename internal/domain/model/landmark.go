// Package model contains domain models passed between layers.
package model

import "math"

// Reference landmark indices in the 468/478-point FaceMesh topology.
// Producers must deliver points in that order for these to resolve.
const (
	NoseTipIndex  = 1
	LeftEyeIndex  = 33
	RightEyeIndex = 263
)

// Point is one landmark. X and Y are normalized to [0,1] relative to the
// frame (Y grows downward); Z is relative depth.
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// LandmarkFrame is the ordered landmark sequence for a single face in one frame.
type LandmarkFrame []Point

// References returns the nose tip, left eye and right eye points.
// ok is false when the frame is too short to contain all three or when any
// of their X/Y coordinates is NaN or infinite.
func (f LandmarkFrame) References() (nose, leftEye, rightEye Point, ok bool) {
	if len(f) <= RightEyeIndex {
		return Point{}, Point{}, Point{}, false
	}
	nose, leftEye, rightEye = f[NoseTipIndex], f[LeftEyeIndex], f[RightEyeIndex]
	if !nose.finite() || !leftEye.finite() || !rightEye.finite() {
		return Point{}, Point{}, Point{}, false
	}
	return nose, leftEye, rightEye, true
}

// finite reports whether the planar coordinates are usable. Z is unused.
func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}
