package config

import "errors"

var (
	// ErrLoadConfig wraps failures reading .env, YAML or environment layers.
	ErrLoadConfig = errors.New("config: load")
	// ErrInvalidConfig is returned when a loaded value fails validation.
	ErrInvalidConfig = errors.New("config: invalid value")
)
