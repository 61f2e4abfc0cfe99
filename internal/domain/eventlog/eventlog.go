// Package eventlog rate-limits sustained-bad-posture events on their way to
// the log store.
package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
	"golang.org/x/time/rate"
)

// DefaultCooldown is the minimum gap between forwarded submissions.
const DefaultCooldown = 5000 * time.Millisecond

const suppressedLogInterval = 30 * time.Second

// Sink accepts submissions without blocking.
type Sink interface {
	TryEnqueue(ctx context.Context, s model.Submission) error
}

// EventLogger gates submissions through a cooldown and hands survivors to a
// Sink. It never blocks and never reports delivery failures to the caller.
type EventLogger struct {
	sink     Sink
	cooldown time.Duration
	gate     *Cooldown
	logger   logger.Logger

	suppressed rate.Sometimes
}

// New creates an EventLogger writing to sink.
func New(sink Sink, opts ...Option) *EventLogger {
	l := &EventLogger{
		sink:       sink,
		cooldown:   DefaultCooldown,
		logger:     logger.Get().Named("eventlog"),
		suppressed: rate.Sometimes{First: 1, Interval: suppressedLogInterval},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.gate = NewCooldown(l.cooldown)
	return l
}

// Submit forwards message stamped at ts unless it falls inside the cooldown
// window. It returns true when the submission was handed to the sink.
//
// The cooldown clock advances whenever the gate admits a submission, even if
// the sink then rejects it.
func (l *EventLogger) Submit(ctx context.Context, message string, ts time.Time) bool {
	if !l.gate.Allow(ts) {
		metrics.RecordSubmission(metrics.OutcomeCooldown)
		l.suppressed.Do(func() {
			l.logger.Debug(ctx, "submission suppressed by cooldown",
				logger.String("message", message),
				logger.Duration("cooldown", l.cooldown),
			)
		})
		return false
	}

	s := model.NewSubmission(message, ts)
	if err := l.sink.TryEnqueue(ctx, s); err != nil {
		metrics.RecordSubmission(metrics.OutcomeDropped)
		reason := "rejected"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			reason = "cancelled"
		}
		l.logger.Warn(ctx, "submission dropped",
			logger.String("reason", reason),
			logger.String("message", message),
			logger.Int64("timestamp", s.Timestamp),
			logger.Error(err),
		)
		return false
	}

	metrics.RecordSubmission(metrics.OutcomeForwarded)
	return true
}
