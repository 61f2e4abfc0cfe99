package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/posture/internal/adapters/mq/queue"
	worker "github.com/okian/posture/internal/adapters/mq/worker"
	model "github.com/okian/posture/internal/domain/model"
	logging "github.com/okian/posture/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockForwarder struct {
	mu    sync.Mutex
	seen  []model.Submission
	fail  map[int64]error
	delay time.Duration
}

func newMockForwarder() *mockForwarder {
	return &mockForwarder{fail: make(map[int64]error)}
}

func (f *mockForwarder) Forward(ctx context.Context, s queue.Submission) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[s.Timestamp]; ok {
		return err
	}
	f.seen = append(f.seen, s)
	return nil
}

func (f *mockForwarder) delivered() []model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Submission(nil), f.seen...)
}

func sub(ts int64) model.Submission {
	return model.NewSubmission(model.MessageSlouching, time.UnixMilli(ts))
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		fwd := newMockForwarder()
		w := worker.NewInMemoryWorker(q, fwd, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go w.Run(ctx)

		convey.Convey("When submissions are queued", func() {
			q.Enqueue(ctx, sub(1))
			q.Enqueue(ctx, sub(2))
			_ = q.Close()
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then they should be forwarded in order", func() {
				convey.So(fwd.delivered(), convey.ShouldResemble, []model.Submission{sub(1), sub(2)})
				convey.So(w.Counters(), convey.ShouldResemble, worker.Counters{Delivered: 2})
			})
		})

		convey.Convey("When forwarding fails", func() {
			fwd.fail[10] = errors.New("store unavailable")
			q.Enqueue(ctx, sub(10))
			q.Enqueue(ctx, sub(11))
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then the failure should be counted and the next submission still delivered", func() {
				convey.So(fwd.delivered(), convey.ShouldResemble, []model.Submission{sub(11)})
				convey.So(w.Counters(), convey.ShouldResemble, worker.Counters{Delivered: 1, Failed: 1})
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer shutdownCancel()

			err := w.Shutdown(shutdownCtx)

			convey.Convey("Then it should stop gracefully", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerShutdownReleasesQueue(t *testing.T) {
	convey.Convey("Given an idle worker that has been shut down", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		fwd := newMockForwarder()
		w := worker.NewInMemoryWorker(q, fwd)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)
		time.Sleep(10 * time.Millisecond)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer shutdownCancel()
		convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		time.Sleep(20 * time.Millisecond)

		convey.Convey("When a submission is queued afterwards", func() {
			convey.So(q.Enqueue(ctx, sub(7)), convey.ShouldBeTrue)
			time.Sleep(20 * time.Millisecond)

			convey.Convey("Then it should stay queued for the next consumer", func() {
				convey.So(q.Len(ctx), convey.ShouldEqual, 1)
				convey.So(fwd.delivered(), convey.ShouldBeEmpty)

				next := worker.NewInMemoryWorker(q, fwd)
				go next.Run(ctx)
				_ = q.Close()
				time.Sleep(50 * time.Millisecond)
				convey.So(fwd.delivered(), convey.ShouldResemble, []model.Submission{sub(7)})
			})
		})
	})
}

func TestWorkerDeliveryTimeout(t *testing.T) {
	convey.Convey("Given a slow forwarder and a short delivery timeout", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue()
		fwd := newMockForwarder()
		fwd.delay = time.Second
		w := worker.NewInMemoryWorker(q, fwd, worker.WithDeliveryTimeout(10*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		q.Enqueue(ctx, sub(1))
		time.Sleep(100 * time.Millisecond)

		convey.Convey("Then the delivery should be abandoned as failed", func() {
			convey.So(w.Counters().Failed, convey.ShouldEqual, 1)
			convey.So(fwd.delivered(), convey.ShouldBeEmpty)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(200))
		fwd := newMockForwarder()

		convey.Convey("When created with a non-positive count", func() {
			pool := worker.NewPool(0, q, fwd)

			convey.Convey("Then it should run a single worker", func() {
				convey.So(pool.Size(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When many submissions are queued and the pool shuts down", func() {
			pool := worker.NewPool(4, q, fwd)
			ctx, cancel := context.WithCancel(context.Background())
			pool.Start(ctx)

			for i := int64(1); i <= 100; i++ {
				convey.So(q.Enqueue(ctx, sub(i)), convey.ShouldBeTrue)
			}
			// Cancelling the start context must not abandon queued work.
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then every submission should be delivered before it returns", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(fwd.delivered()), convey.ShouldEqual, 100)
				convey.So(pool.Counters().Delivered, convey.ShouldEqual, 100)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
