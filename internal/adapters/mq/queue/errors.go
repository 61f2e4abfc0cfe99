package queue

import "errors"

// Sentinel errors returned by TryEnqueue.
var (
	ErrQueueClosed = errors.New("queue closed")
	ErrQueueFull   = errors.New("queue full")
)
