package model

import "time"

// EntryType enumerates the kinds of persisted events.
type EntryType string

// EntryBadPosture is the only event type currently emitted.
const EntryBadPosture EntryType = "bad_posture"

// Submission is a sustained-bad-posture event on its way to the log store.
// Fields mirror the POST /api/log request body.
type Submission struct {
	Timestamp int64     `json:"timestamp"` // epoch millis
	Message   string    `json:"message"`
	Type      EntryType `json:"type"`
}

// NewSubmission builds a bad_posture submission stamped at ts.
func NewSubmission(message string, ts time.Time) Submission {
	return Submission{
		Timestamp: ts.UnixMilli(),
		Message:   message,
		Type:      EntryBadPosture,
	}
}

// LogEntry is an accepted submission as retained by the log store.
// Entries are immutable once created.
type LogEntry struct {
	ID         string    `json:"id"`
	Timestamp  int64     `json:"timestamp"`
	Message    string    `json:"message"`
	Type       EntryType `json:"type"`
	ReceivedAt time.Time `json:"receivedAt"`
}
