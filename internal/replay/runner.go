// Package replay feeds recorded landmark streams through a posture session,
// forwarding any alerts to a local store or a remote log service.
package replay

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/okian/posture/internal/adapters/http/client"
	"github.com/okian/posture/internal/adapters/repository"
	service "github.com/okian/posture/internal/app"
	"github.com/okian/posture/pkg/logger"
)

const progressTemplate = `{{ string . "prefix" }} {{counters . }} {{bar . }} {{percent . }} {{etime . "%s elapsed"}}`

// Config controls a replay run.
type Config struct {
	// Endpoint, when set, is the base URL of a remote log service.
	Endpoint string
	// StorePath is the local JSON store used when Endpoint is empty.
	StorePath string
	// Speed scales recorded gaps between frames; 0 replays as fast as possible.
	Speed float64

	// Zero durations keep the service defaults.
	PersistenceThreshold time.Duration
	LogCooldown          time.Duration
	Timeout              time.Duration

	// Progress receives the progress bar; nil disables it.
	Progress io.Writer

	// Logger defaults to the global logger named "replay".
	Logger logger.Logger
}

// Stats summarizes a replay.
type Stats struct {
	Frames    int64
	BadFrames int64
	Alerts    int64
	Forwarded int64
	Delivered int64
	Failed    int64
	Duration  time.Duration
}

// Run replays records through one session and waits for every forwarded
// submission to be delivered before returning.
func Run(ctx context.Context, cfg Config, records []Record) (Stats, error) {
	if len(records) == 0 {
		return Stats{}, ErrEmpty
	}
	l := cfg.Logger
	if l == nil {
		l = logger.Get().Named("replay")
	}
	started := time.Now()

	opts := []service.Option{
		service.WithLogger(l),
		service.WithDeliveryTimeout(cfg.Timeout),
	}
	if cfg.PersistenceThreshold > 0 {
		opts = append(opts, service.WithPersistenceThreshold(cfg.PersistenceThreshold))
	}
	if cfg.LogCooldown > 0 {
		opts = append(opts, service.WithLogCooldown(cfg.LogCooldown))
	}
	if cfg.Endpoint != "" {
		c := client.New(cfg.Endpoint, client.WithTimeout(cfg.Timeout), client.WithLogger(l.Named("client")))
		if err := c.Health(ctx); err != nil {
			return Stats{}, fmt.Errorf("log service health check failed: %w", err)
		}
		// The local store is unused when forwarding remotely.
		opts = append(opts,
			service.WithForwarder(c),
			service.WithStoreTarget(repository.Target{Driver: repository.DriverSQLite, Path: ":memory:"}),
		)
	} else {
		opts = append(opts, service.WithStoreTarget(repository.Target{
			Driver: repository.DriverFile,
			Path:   cfg.StorePath,
		}))
	}

	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return Stats{}, err
	}
	sess, err := svc.NewSession(ctx)
	if err != nil {
		_ = svc.Stop(ctx)
		return Stats{}, err
	}

	l.Info(ctx, "starting replay",
		logger.Int("records", len(records)),
		logger.String("endpoint", cfg.Endpoint),
		logger.Float64("speed", cfg.Speed),
	)

	var bar *pb.ProgressBar
	if cfg.Progress != nil {
		bar = pb.ProgressBarTemplate(progressTemplate).New(len(records)).
			SetWriter(cfg.Progress).
			Set("prefix", "replay").
			Start()
	}

	runErr := feed(ctx, sess, records, cfg.Speed, bar)

	if bar != nil {
		bar.Finish()
	}
	sess.Close()
	if err := svc.Stop(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}

	st := sess.Stats()
	delivery := svc.Delivery()
	stats := Stats{
		Frames:    st.Frames,
		BadFrames: st.BadFrames,
		Alerts:    st.Alerts,
		Forwarded: st.Forwarded,
		Delivered: delivery.Delivered,
		Failed:    delivery.Failed,
		Duration:  time.Since(started),
	}
	l.Info(ctx, "replay finished",
		logger.Int64("frames", stats.Frames),
		logger.Int64("badFrames", stats.BadFrames),
		logger.Int64("alerts", stats.Alerts),
		logger.Int64("forwarded", stats.Forwarded),
		logger.Int64("delivered", stats.Delivered),
		logger.Int64("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
	)
	return stats, runErr
}

func feed(ctx context.Context, sess *service.Session, records []Record, speed float64, bar *pb.ProgressBar) error {
	var prev int64
	for i, rec := range records {
		if i > 0 && speed > 0 && rec.TS > prev {
			gap := time.Duration(float64(time.Duration(rec.TS-prev)*time.Millisecond) / speed)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(gap):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		prev = rec.TS

		if rec.IsCalibrate() {
			sess.Calibrate()
		} else {
			sess.Process(ctx, rec.Landmarks, time.UnixMilli(rec.TS))
		}
		if bar != nil {
			bar.Increment()
		}
	}
	return nil
}
