// Package service wires the posture pipeline: per-session analysis and
// alerting, the shared submission queue and its delivery workers, and the
// log store behind the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	eventqueue "github.com/okian/posture/internal/adapters/mq/queue"
	workerpool "github.com/okian/posture/internal/adapters/mq/worker"
	repository "github.com/okian/posture/internal/adapters/repository"
	"github.com/okian/posture/internal/adapters/notify"
	"github.com/okian/posture/internal/domain/alert"
	"github.com/okian/posture/internal/domain/eventlog"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/posture"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

const (
	defaultWorkerCount     = 1
	defaultQueueSize       = 64
	defaultDeliveryTimeout = 5 * time.Second
)

// storeForwarder delivers submissions straight into the local store.
type storeForwarder struct {
	store repository.Store
}

func (f storeForwarder) Forward(ctx context.Context, s model.Submission) error {
	_, err := f.store.Append(ctx, s)
	return err
}

// Service owns the shared pipeline components and hands out sessions.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	forwarder  workerpool.Forwarder
	queue      *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	notifier   notify.Notifier

	// Configuration
	target          repository.Target
	retention       int
	workerCount     int
	queueSize       int
	deliveryTimeout time.Duration
	analyzerOpts    []posture.Option
	persistence     time.Duration
	cooldown        time.Duration
	now             func() time.Time

	// State
	started  bool
	sessions map[string]*Session
	closed   SessionStats

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		target:          repository.Target{Driver: repository.DriverFile, Path: "logs.json"},
		retention:       repository.DefaultRetentionCap,
		workerCount:     defaultWorkerCount,
		queueSize:       defaultQueueSize,
		deliveryTimeout: defaultDeliveryTimeout,
		persistence:     alert.DefaultPersistenceThreshold,
		cooldown:        eventlog.DefaultCooldown,
		now:             time.Now,
		sessions:        make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store if needed and starts the delivery workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting posture service...")

	if s.store == nil {
		store, err := repository.Open(ctx, s.target,
			repository.WithRetentionCap(s.retention),
			repository.WithLogger(s.logger.Named("store")),
		)
		if err != nil {
			return fmt.Errorf("open log store: %w", err)
		}
		s.store = store
		s.logger.Info(ctx, "log store opened", logger.String("driver", s.target.Driver))
	}
	metrics.UpdateStoreEntries(s.store.Count())

	forwarder := s.forwarder
	if forwarder == nil {
		forwarder = storeForwarder{store: s.store}
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.logger.Named("alerts"))
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, forwarder,
		workerpool.WithDeliveryTimeout(s.deliveryTimeout),
		workerpool.WithLogger(s.logger.Named("worker")),
	)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "posture service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("persistence", s.persistence),
		logger.Duration("cooldown", s.cooldown),
	)
	return nil
}

// Stop drains pending submissions and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping posture service...")

	var firstErr error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		firstErr = err
		s.logger.Warn(ctx, "submission queue not fully drained", logger.Error(err))
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close log store: %w", err)
	}
	s.store = nil

	s.started = false
	s.logger.Info(ctx, "posture service stopped")
	return firstErr
}

// NewSession creates an independent pipeline for one frame stream.
func (s *Service) NewSession(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, ErrNotStarted
	}

	id := uuid.NewString()
	l := s.logger.Named("session").With(logger.String("session", id))
	sess := &Session{
		id:       id,
		analyzer: posture.New(s.analyzerOpts...),
		machine:  alert.New(alert.WithPersistenceThreshold(s.persistence)),
		events: eventlog.New(s.queue,
			eventlog.WithCooldown(s.cooldown),
			eventlog.WithLogger(l),
		),
		notifier: s.notifier,
		logger:   l,
	}
	sess.release = func() { s.release(sess) }
	s.sessions[id] = sess
	metrics.UpdateActiveSessions(1)

	l.Info(ctx, "session opened")
	return sess, nil
}

// Delivery returns the worker pool counters. They remain readable after Stop.
func (s *Service) Delivery() workerpool.Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.workerPool == nil {
		return workerpool.Counters{}
	}
	return s.workerPool.Counters()
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) release(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.id]; !ok {
		return
	}
	delete(s.sessions, sess.id)
	st := sess.Stats()
	s.closed.Frames += st.Frames
	s.closed.BadFrames += st.BadFrames
	s.closed.Alerts += st.Alerts
	s.closed.Forwarded += st.Forwarded
	metrics.UpdateActiveSessions(-1)
}

// Append implements the HTTP log store contract against the local store.
func (s *Service) Append(ctx context.Context, sub model.Submission) (model.LogEntry, error) {
	store, err := s.localStore()
	if err != nil {
		return model.LogEntry{}, err
	}
	return store.Append(ctx, sub)
}

// List implements the HTTP log store contract against the local store.
func (s *Service) List(ctx context.Context) []model.LogEntry {
	store, err := s.localStore()
	if err != nil {
		return []model.LogEntry{}
	}
	return store.List(ctx)
}

func (s *Service) localStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	totals := s.closed
	for _, sess := range s.sessions {
		st := sess.Stats()
		totals.Frames += st.Frames
		totals.BadFrames += st.BadFrames
		totals.Alerts += st.Alerts
		totals.Forwarded += st.Forwarded
	}
	delivery := s.workerPool.Counters()
	entries := s.store.Count()

	stats["activeSessions"] = len(s.sessions)
	stats["frames"] = totals.Frames
	stats["badFrames"] = totals.BadFrames
	stats["alerts"] = totals.Alerts
	stats["forwarded"] = totals.Forwarded
	stats["queueLength"] = s.queue.Len(ctx)
	stats["delivered"] = delivery.Delivered
	stats["deliveryFailed"] = delivery.Failed
	stats["storedEntries"] = entries

	metrics.UpdateStoreEntries(entries)
	return stats
}
