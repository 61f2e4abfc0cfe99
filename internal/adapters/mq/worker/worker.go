// Package worker delivers queued log submissions to the log store.
//
// Delivery is fire-and-forget: a failed Forward is logged and counted but
// never retried.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/posture/internal/adapters/mq/queue"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultDeliveryTimeout = 5 * time.Second
	poolShutdownTimeout    = 30 * time.Second
)

// Forwarder hands one submission to its destination.
type Forwarder interface {
	Forward(ctx context.Context, s queue.Submission) error
}

// Queue defines how workers receive submissions.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Submission
}

// Worker drains submissions from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue drains.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining.
	Shutdown(ctx context.Context) error
}

// Counters is a snapshot of delivery outcomes.
type Counters struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	forwarder Forwarder
	name      string
	timeout   time.Duration

	shutdown chan struct{}
	done     chan struct{}

	delivered atomic.Int64
	failed    atomic.Int64

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, forwarder Forwarder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		forwarder: forwarder,
		name:      "worker",
		timeout:   defaultDeliveryTimeout,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. Returning releases the queue's feeding
// goroutine.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	items := w.queue.Dequeue(feedCtx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case s, ok := <-items:
			if !ok {
				return
			}
			if err := w.deliver(ctx, s); err != nil {
				w.logger.Error(ctx, "submission delivery failed",
					logger.Int64("timestamp", s.Timestamp),
					logger.String("message", s.Message),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown signals the worker to stop and waits for it.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Counters returns delivery outcomes so far.
func (w *InMemoryWorker) Counters() Counters {
	return Counters{Delivered: w.delivered.Load(), Failed: w.failed.Load()}
}

func (w *InMemoryWorker) deliver(ctx context.Context, s queue.Submission) error {
	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	err := w.forwarder.Forward(dctx, s)
	metrics.RecordDeliveryLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		w.failed.Add(1)
		metrics.RecordSubmission(metrics.OutcomeFailed)
		return fmt.Errorf("forward submission: %w", err)
	}
	w.delivered.Add(1)
	metrics.RecordSubmission(metrics.OutcomeDelivered)
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	cancel  context.CancelFunc

	logger logger.Logger
}

// NewPool creates a new worker pool. A count below one starts a single worker.
func NewPool(workerCount int, q Queue, forwarder Forwarder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, forwarder, wopts...)
	}
	return pool
}

// Start starts all workers in the pool. Workers keep running until
// Shutdown, even if ctx is canceled first, so pending submissions can drain.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	for _, w := range p.workers {
		go w.Run(runCtx)
	}
}

// Counters sums delivery outcomes across workers.
func (p *Pool) Counters() Counters {
	var c Counters
	for _, w := range p.workers {
		wc := w.Counters()
		c.Delivered += wc.Delivered
		c.Failed += wc.Failed
	}
	return c
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Shutdown closes the queue and waits for workers to drain it. Workers still
// busy when ctx expires are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if p.cancel != nil {
		p.cancel()
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
