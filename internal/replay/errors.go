package replay

import "errors"

// Sentinel errors for replays.
var (
	ErrBadRecording = errors.New("invalid recording")
	ErrEmpty        = errors.New("recording has no frames")
)
