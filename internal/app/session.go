package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/posture/internal/adapters/notify"
	"github.com/okian/posture/internal/domain/alert"
	"github.com/okian/posture/internal/domain/eventlog"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/posture"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// Frame result labels for metrics.
const (
	resultNeutral  = "neutral"
	resultBaseline = "baseline"
	resultGood     = "good"
	resultBad      = "bad"
)

// Status is pushed to the client after every frame.
type Status struct {
	model.Classification
	Alert model.AlertState `json:"alert"`
}

// SessionStats counts what a session has seen.
type SessionStats struct {
	Frames    int64 `json:"frames"`
	BadFrames int64 `json:"badFrames"`
	Alerts    int64 `json:"alerts"`
	Forwarded int64 `json:"forwarded"`
}

// Session is one independent frame stream: its own analyzer, state machine
// and event logger. Process must be called from a single goroutine;
// Calibrate may be called from anywhere.
type Session struct {
	id       string
	analyzer *posture.Analyzer
	machine  *alert.Machine
	events   *eventlog.EventLogger
	notifier notify.Notifier
	logger   logger.Logger
	release  func()

	frames    atomic.Int64
	badFrames atomic.Int64
	alerts    atomic.Int64
	forwarded atomic.Int64
	closed    atomic.Bool

	// rearm is consumed by the next Process call, which resets the machine.
	rearm atomic.Bool
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Calibrate makes the next frame with usable landmarks the new baseline and
// drops any pending or active alert at the next processed frame.
func (s *Session) Calibrate() {
	s.analyzer.Calibrate()
	s.rearm.Store(true)
	s.logger.Debug(context.Background(), "calibration armed")
}

// Process runs one frame through the pipeline. Frames without the reference
// landmarks are classified neutral and leave the alert state untouched.
func (s *Session) Process(ctx context.Context, frame model.LandmarkFrame, now time.Time) Status {
	start := time.Now()
	defer func() {
		metrics.RecordFrameProcessTime(float64(time.Since(start).Microseconds()) / 1000)
	}()
	s.frames.Add(1)

	if s.rearm.Swap(false) {
		prev := s.machine.State()
		if s.machine.Reset() {
			metrics.RecordAlertCleared()
			s.notify(ctx, notify.KindCleared, prev, now)
		}
	}

	c := s.analyzer.Analyze(frame)
	if c.Neutral() {
		metrics.RecordFrameAnalyzed(resultNeutral)
		return Status{Classification: c, Alert: s.machine.State()}
	}

	switch {
	case c.IsBadPosture:
		s.badFrames.Add(1)
		metrics.RecordFrameAnalyzed(resultBad)
	case c.Message == model.MessageBaselineSet:
		metrics.RecordFrameAnalyzed(resultBaseline)
		s.logger.Info(ctx, "baseline set")
	default:
		metrics.RecordFrameAnalyzed(resultGood)
	}

	prev := s.machine.State()
	u := s.machine.Observe(c, now)
	if u.Activated {
		s.alerts.Add(1)
		metrics.RecordAlertActivated(u.State.Message)
		if s.events.Submit(ctx, u.State.Message, now) {
			s.forwarded.Add(1)
		}
		s.notify(ctx, notify.KindActivated, u.State, now)
	}
	if u.Cleared {
		metrics.RecordAlertCleared()
		s.notify(ctx, notify.KindCleared, prev, now)
	}

	return Status{Classification: c, Alert: u.State}
}

// Stats returns the session counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Frames:    s.frames.Load(),
		BadFrames: s.badFrames.Load(),
		Alerts:    s.alerts.Load(),
		Forwarded: s.forwarded.Load(),
	}
}

// Close detaches the session from its service. Closing twice is a no-op.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	if s.release != nil {
		s.release()
	}
	st := s.Stats()
	s.logger.Info(context.Background(), "session closed",
		logger.Int64("frames", st.Frames),
		logger.Int64("alerts", st.Alerts),
	)
}

func (s *Session) notify(ctx context.Context, kind string, st model.AlertState, now time.Time) {
	if s.notifier == nil {
		return
	}
	e := notify.Event{
		SessionID: s.id,
		Kind:      kind,
		Message:   st.Message,
		Since:     st.Since,
		At:        now,
	}
	if err := s.notifier.Notify(ctx, e); err != nil {
		s.logger.Warn(ctx, "alert notification failed", logger.String("kind", kind), logger.Error(err))
	}
}
