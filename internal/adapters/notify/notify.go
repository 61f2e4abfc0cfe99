// Package notify fans alert transitions out to external sinks.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// Kind of alert transition.
const (
	KindActivated = "activated"
	KindCleared   = "cleared"
)

// Event describes one alert transition of a session.
type Event struct {
	SessionID string     `json:"sessionId"`
	Kind      string     `json:"kind"`
	Message   string     `json:"message,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	At        time.Time  `json:"at"`
}

// Notifier delivers alert events. Implementations must not block the caller
// for long; the frame stream waits on Notify.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
	Name() string
}

// Multi delivers to every sink and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		err := n.Notify(ctx, e)
		result := "ok"
		if err != nil {
			result = "error"
			errs = append(errs, err)
		}
		metrics.RecordNotification(n.Name(), result)
	}
	return errors.Join(errs...)
}

// Name implements Notifier.
func (m Multi) Name() string { return "multi" }

// LogNotifier writes each event as a structured log line.
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(l logger.Logger) *LogNotifier {
	return &LogNotifier{logger: l}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, e Event) error {
	fields := []logger.Field{
		logger.String("session", e.SessionID),
		logger.String("message", e.Message),
	}
	if e.Since != nil {
		fields = append(fields, logger.Duration("sustained", e.At.Sub(*e.Since)))
	}
	switch e.Kind {
	case KindActivated:
		n.logger.Warn(ctx, "posture alert raised", fields...)
	default:
		n.logger.Info(ctx, "posture alert cleared", fields...)
	}
	return nil
}

// Name implements Notifier.
func (n *LogNotifier) Name() string { return "log" }
