package service

import (
	"time"

	workerpool "github.com/okian/posture/internal/adapters/mq/worker"
	"github.com/okian/posture/internal/adapters/notify"
	repository "github.com/okian/posture/internal/adapters/repository"
	"github.com/okian/posture/internal/domain/posture"
	"github.com/okian/posture/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of delivery workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the submission queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDeliveryTimeout bounds each delivery to the log store.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.deliveryTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects an already opened log store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithStoreTarget selects the backend opened on Start when no store was injected.
func WithStoreTarget(t repository.Target) Option {
	return func(s *Service) {
		s.target = t
	}
}

// WithRetentionCap sets the number of entries kept by a store opened on Start.
func WithRetentionCap(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithForwarder routes session submissions somewhere other than the local
// store, e.g. a remote log service.
func WithForwarder(f workerpool.Forwarder) Option {
	return func(s *Service) {
		if f != nil {
			s.forwarder = f
		}
	}
}

// WithNotifier sets the sink for alert transitions.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithAnalyzerOptions passes thresholds to every session's analyzer.
func WithAnalyzerOptions(opts ...posture.Option) Option {
	return func(s *Service) {
		s.analyzerOpts = append(s.analyzerOpts, opts...)
	}
}

// WithPersistenceThreshold sets how long bad posture must last before an alert.
func WithPersistenceThreshold(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.persistence = d
		}
	}
}

// WithLogCooldown sets the minimum gap between a session's log submissions.
func WithLogCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.cooldown = d
		}
	}
}

// WithClock overrides the clock used for frames that carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
