package service_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/posture/internal/adapters/notify"
	"github.com/okian/posture/internal/adapters/repository"
	service "github.com/okian/posture/internal/app"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
}

var t0 = time.UnixMilli(1_700_000_000_000)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func face(noseY, tilt float64) model.LandmarkFrame {
	frame := make(model.LandmarkFrame, 468)
	frame[model.NoseTipIndex] = model.Point{X: 0.5, Y: noseY}
	frame[model.LeftEyeIndex] = model.Point{X: 0.4, Y: 0.4}
	frame[model.RightEyeIndex] = model.Point{X: 0.4 + 0.2*math.Cos(tilt), Y: 0.4 + 0.2*math.Sin(tilt)}
	return frame
}

var (
	upright  = face(0.5, 0)
	slouched = face(0.6, 0)
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

type failingForwarder struct{}

func (failingForwarder) Forward(context.Context, model.Submission) error {
	return errors.New("remote unavailable")
}

func newService(t *testing.T, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithStoreTarget(repository.Target{
			Driver: repository.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "logs.db"),
		}),
	}
	svc := service.New(append(base, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	return svc
}

// waitFor polls cond for up to a second.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// slouchFor feeds bad frames every 100ms over [from, to] ms.
func slouchFor(sess *service.Session, from, to int) service.Status {
	var st service.Status
	for ms := from; ms <= to; ms += 100 {
		st = sess.Process(context.Background(), slouched, at(ms))
	}
	return st
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithStoreTarget(repository.Target{
			Driver: repository.DriverFile,
			Path:   filepath.Join(t.TempDir(), "logs.json"),
		}))

		Convey("When no session can be opened before start", func() {
			_, err := svc.NewSession(ctx)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.List(ctx), ShouldBeEmpty)
		})

		Convey("When started and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)

			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it should report stopped and reject appends", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				_, err := svc.Append(ctx, model.NewSubmission("slouching", t0))
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.Stop(ctx), ShouldBeNil)
			})
		})

		Convey("When the store target is invalid", func() {
			bad := service.New(service.WithStoreTarget(repository.Target{Driver: "postgres"}))
			err := bad.Start(ctx)

			Convey("Then start should fail", func() {
				So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
			})
		})
	})
}

func TestSessionPipeline(t *testing.T) {
	Convey("Given a running service and one session", t, func() {
		ctx := context.Background()
		notes := &recordingNotifier{}
		svc := newService(t, service.WithNotifier(notes))
		defer svc.Stop(ctx)

		sess, err := svc.NewSession(ctx)
		So(err, ShouldBeNil)
		defer sess.Close()

		first := sess.Process(ctx, upright, at(-100))
		So(first.Message, ShouldEqual, model.MessageBaselineSet)

		Convey("When bad posture persists past the threshold", func() {
			pending := slouchFor(sess, 0, 1400)
			So(pending.IsBadPosture, ShouldBeTrue)
			So(pending.Alert.Active, ShouldBeFalse)

			active := sess.Process(ctx, slouched, at(1600))

			Convey("Then the alert should activate and one entry should be logged", func() {
				So(active.Alert.Active, ShouldBeTrue)
				So(*active.Alert.Since, ShouldEqual, at(0))
				So(active.Alert.Message, ShouldEqual, model.MessageSlouching)

				So(waitFor(func() bool { return len(svc.List(ctx)) == 1 }), ShouldBeTrue)
				entry := svc.List(ctx)[0]
				So(entry.Timestamp, ShouldEqual, at(1600).UnixMilli())
				So(entry.Message, ShouldEqual, model.MessageSlouching)
				So(entry.Type, ShouldEqual, model.EntryBadPosture)

				So(notes.kinds(), ShouldResemble, []string{notify.KindActivated})
			})

			Convey("Then a good frame should clear it and notify", func() {
				cleared := sess.Process(ctx, upright, at(1700))
				So(cleared.Alert.Active, ShouldBeFalse)
				So(notes.kinds(), ShouldResemble, []string{notify.KindActivated, notify.KindCleared})
				So(notes.events[1].Message, ShouldEqual, model.MessageSlouching)
			})
		})

		Convey("When alerts repeat inside the cooldown", func() {
			slouchFor(sess, 0, 1600)
			sess.Process(ctx, upright, at(1700))
			second := slouchFor(sess, 1800, 3400)
			So(second.Alert.Active, ShouldBeTrue)
			sess.Process(ctx, upright, at(3500))
			third := slouchFor(sess, 5100, 6700)
			So(third.Alert.Active, ShouldBeTrue)

			Convey("Then only alerts outside the cooldown should be logged", func() {
				So(waitFor(func() bool { return len(svc.List(ctx)) == 2 }), ShouldBeTrue)
				time.Sleep(20 * time.Millisecond)
				entries := svc.List(ctx)
				So(len(entries), ShouldEqual, 2)
				So(entries[0].Timestamp, ShouldEqual, at(1600).UnixMilli())
				So(entries[1].Timestamp, ShouldEqual, at(6700).UnixMilli())
				So(sess.Stats(), ShouldResemble, service.SessionStats{
					Frames: 1 + 17 + 1 + 17 + 1 + 17, BadFrames: 51, Alerts: 3, Forwarded: 2,
				})
			})
		})

		Convey("When a frame without landmarks arrives mid-run", func() {
			slouchFor(sess, 0, 1000)
			neutral := sess.Process(ctx, model.LandmarkFrame{}, at(1100))
			st := slouchFor(sess, 1200, 1600)

			Convey("Then it should be neutral and leave the run intact", func() {
				So(neutral.Neutral(), ShouldBeTrue)
				So(neutral.IsBadPosture, ShouldBeFalse)
				So(st.Alert.Active, ShouldBeTrue)
				So(*st.Alert.Since, ShouldEqual, at(0))
			})
		})

		Convey("When calibration is requested while an alert is active", func() {
			slouchFor(sess, 0, 1600)
			sess.Calibrate()
			neutral := sess.Process(ctx, nil, at(1700))

			Convey("Then the alert should drop on the next frame, even a neutral one", func() {
				So(neutral.Neutral(), ShouldBeTrue)
				So(neutral.Alert.Active, ShouldBeFalse)
				So(notes.kinds(), ShouldResemble, []string{notify.KindActivated, notify.KindCleared})
			})
		})

		Convey("When calibration is requested during a pending run", func() {
			slouchFor(sess, 0, 1000)
			sess.Calibrate()
			baseline := sess.Process(ctx, slouched, at(1100))
			after := sess.Process(ctx, slouched, at(1700))

			Convey("Then the new baseline should reset the pending alert", func() {
				So(baseline.Message, ShouldEqual, model.MessageBaselineSet)
				So(baseline.Alert.Active, ShouldBeFalse)
				So(after.IsBadPosture, ShouldBeFalse)
				So(after.Alert.Active, ShouldBeFalse)
			})
		})
	})
}

func TestSessionsAreIndependent(t *testing.T) {
	Convey("Given two sessions on one service", t, func() {
		ctx := context.Background()
		svc := newService(t)
		defer svc.Stop(ctx)

		a, _ := svc.NewSession(ctx)
		b, _ := svc.NewSession(ctx)
		So(a.ID(), ShouldNotEqual, b.ID())
		So(svc.GetStats()["activeSessions"], ShouldEqual, 2)

		a.Process(ctx, upright, at(-100))
		b.Process(ctx, upright, at(-100))

		Convey("When both raise alerts at the same moment", func() {
			slouchFor(a, 0, 1600)
			slouchFor(b, 0, 1600)

			Convey("Then each should log under its own cooldown", func() {
				So(waitFor(func() bool { return len(svc.List(ctx)) == 2 }), ShouldBeTrue)
			})
		})

		Convey("When a session is closed", func() {
			a.Process(ctx, upright, at(0))
			a.Close()
			a.Close()
			stats := svc.GetStats()

			Convey("Then its counters should be kept and it should leave the active set", func() {
				So(stats["activeSessions"], ShouldEqual, 1)
				So(stats["frames"], ShouldEqual, int64(3))
			})
		})
	})
}

func TestDeliveryFailure(t *testing.T) {
	Convey("Given a service whose forwarder always fails", t, func() {
		ctx := context.Background()
		svc := newService(t, service.WithForwarder(failingForwarder{}))
		defer svc.Stop(ctx)

		sess, _ := svc.NewSession(ctx)
		sess.Process(ctx, upright, at(-100))

		Convey("When an alert fires", func() {
			st := slouchFor(sess, 0, 1600)

			Convey("Then the alert should stand and the failure should only be counted", func() {
				So(st.Alert.Active, ShouldBeTrue)
				So(waitFor(func() bool { return svc.GetStats()["deliveryFailed"] == int64(1) }), ShouldBeTrue)
				So(svc.List(ctx), ShouldBeEmpty)
			})
		})
	})
}

func TestServiceLogContract(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		svc := newService(t, service.WithRetentionCap(2))
		defer svc.Stop(ctx)

		Convey("When entries are appended directly", func() {
			for i := 1; i <= 3; i++ {
				_, err := svc.Append(ctx, model.NewSubmission("slouching", at(i)))
				So(err, ShouldBeNil)
			}

			Convey("Then the retention cap should apply", func() {
				entries := svc.List(ctx)
				So(len(entries), ShouldEqual, 2)
				So(entries[0].Timestamp, ShouldEqual, at(2).UnixMilli())
				So(svc.GetStats()["storedEntries"], ShouldEqual, 2)
			})
		})
	})
}

type listCountingStore struct {
	repository.Store
	lists atomic.Int64
}

func (s *listCountingStore) List(ctx context.Context) []model.LogEntry {
	s.lists.Add(1)
	return s.Store.List(ctx)
}

func TestServiceStatsDoNotReadEntries(t *testing.T) {
	Convey("Given a service over a file store", t, func() {
		ctx := context.Background()
		fs, err := repository.NewFileStore(filepath.Join(t.TempDir(), "logs.json"))
		So(err, ShouldBeNil)
		store := &listCountingStore{Store: fs}
		svc := newService(t, service.WithStore(store))
		defer svc.Stop(ctx)

		Convey("When entries are stored and stats are polled", func() {
			for i := 1; i <= 3; i++ {
				_, err := svc.Append(ctx, model.NewSubmission("slouching", at(i)))
				So(err, ShouldBeNil)
			}
			stats := svc.GetStats()

			Convey("Then the count should come from the store without listing it", func() {
				So(stats["storedEntries"], ShouldEqual, 3)
				So(store.lists.Load(), ShouldEqual, int64(0))
			})
		})
	})
}
