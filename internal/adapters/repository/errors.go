package repository

import "errors"

// Sentinel kinds for log store errors.
var (
	ErrInvalidEntry  = errors.New("invalid log entry")
	ErrStore         = errors.New("log store failure")
	ErrUnknownDriver = errors.New("unknown store driver")

	errCorruptFile = errors.New("corrupt log file")
)
