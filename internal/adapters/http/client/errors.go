package client

import "errors"

// Sentinel errors for the log service client.
var (
	ErrRequest = errors.New("log service request failed")
	ErrRemote  = errors.New("log service rejected request")
)
