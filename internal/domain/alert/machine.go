// Package alert debounces per-frame posture classifications into a stable
// alert signal.
package alert

import (
	"time"

	"github.com/okian/posture/internal/domain/model"
)

// DefaultPersistenceThreshold is how long bad posture must persist before
// the alert activates.
const DefaultPersistenceThreshold = 1500 * time.Millisecond

// Phase is the machine's coarse state.
type Phase int

const (
	Quiet Phase = iota
	Pending
	Active
)

func (p Phase) String() string {
	switch p {
	case Quiet:
		return "quiet"
	case Pending:
		return "pending"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Update is the result of observing one classification.
type Update struct {
	State model.AlertState
	// Activated is set only on the Pending to Active edge.
	Activated bool
	// Cleared is set only when an active alert returns to Quiet.
	Cleared bool
}

// Machine is a Quiet/Pending/Active state machine. It is not safe for
// concurrent use; one frame stream drives one Machine.
type Machine struct {
	threshold time.Duration

	phase   Phase
	since   time.Time
	message string
}

// New creates a Machine in the Quiet phase.
func New(opts ...Option) *Machine {
	m := &Machine{threshold: DefaultPersistenceThreshold}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe applies one classification taken at now.
func (m *Machine) Observe(c model.Classification, now time.Time) Update {
	var u Update

	if !c.IsBadPosture {
		u.Cleared = m.phase == Active
		m.reset()
		u.State = m.State()
		return u
	}

	switch m.phase {
	case Quiet:
		m.phase = Pending
		m.since = now
		m.message = c.Message
	case Pending:
		m.message = c.Message
		if now.Sub(m.since) > m.threshold {
			m.phase = Active
			u.Activated = true
		}
	case Active:
		m.message = c.Message
	}

	u.State = m.State()
	return u
}

// Reset returns the machine to Quiet and reports whether an alert was active.
func (m *Machine) Reset() bool {
	wasActive := m.phase == Active
	m.reset()
	return wasActive
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// State returns the UI-facing alert state. Since is reported only while the
// alert is active.
func (m *Machine) State() model.AlertState {
	if m.phase != Active {
		return model.AlertState{}
	}
	since := m.since
	return model.AlertState{
		Active:  true,
		Since:   &since,
		Message: m.message,
	}
}

// PendingSince returns the start of the current bad-posture run, if any.
func (m *Machine) PendingSince() (time.Time, bool) {
	if m.phase == Quiet {
		return time.Time{}, false
	}
	return m.since, true
}

func (m *Machine) reset() {
	m.phase = Quiet
	m.since = time.Time{}
	m.message = ""
}
