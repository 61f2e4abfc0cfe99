package repository

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/posture/pkg/logger"
)

// DefaultRetentionCap is the number of most recent entries kept.
const DefaultRetentionCap = 1000

// settings are shared by every Store implementation.
type settings struct {
	retention int
	now       func() time.Time
	newID     func() string
	logger    logger.Logger

	// count mirrors the retained entry total as of the last append.
	count *atomic.Int64
}

func newSettings(opts []Option) settings {
	s := settings{
		retention: DefaultRetentionCap,
		now:       time.Now,
		newID:     uuid.NewString,
		count:     new(atomic.Int64),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("store")
	}
	return s
}

// Option applies a configuration option to a Store.
type Option func(*settings)

// WithRetentionCap sets how many of the most recent entries are kept.
func WithRetentionCap(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithClock overrides the receivedAt clock.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides entry id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *settings) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
