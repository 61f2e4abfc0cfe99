package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/posture/internal/replay"
	"github.com/okian/posture/pkg/logger"
)

const (
	defaultSynthSeconds = 30
	defaultFPS          = 15
	defaultTimeout      = 10 * time.Second
)

func main() {
	var (
		input     = flag.String("in", "", "JSONL recording to replay")
		endpoint  = flag.String("endpoint", "", "Base URL of a remote log service (default: local store)")
		storePath = flag.String("store", "replay_logs.json", "Local log store used when -endpoint is empty")
		speed     = flag.Float64("speed", 0, "Playback speed relative to the recording; 0 replays as fast as possible")
		persist   = flag.Duration("persistence", 1500*time.Millisecond, "Bad posture duration before an alert")
		cooldown  = flag.Duration("cooldown", 5*time.Second, "Minimum gap between logged alerts")
		timeout   = flag.Duration("timeout", defaultTimeout, "Per-request timeout for log delivery")
		synth     = flag.String("synth", "", "Write a synthetic recording to this path (- for stdout) and exit")
		seconds   = flag.Int("seconds", defaultSynthSeconds, "Length of the synthetic recording")
		fps       = flag.Int("fps", defaultFPS, "Frame rate of the synthetic recording")
		level     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		quiet     = flag.Bool("quiet", false, "Hide the progress bar and logs; print only the summary")
	)
	flag.Parse()

	// stdout carries recordings and the summary.
	if err := logger.Init(logger.WithWriter(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(*level); err != nil {
		_ = logger.SetLevelString("info")
	}
	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *synth != "" {
		if err := writeSynthetic(*synth, *seconds, *fps); err != nil {
			l.Error(ctx, "failed to write synthetic recording", logger.Error(err))
			os.Exit(1)
		}
		l.Info(ctx, "synthetic recording written", logger.String("path", *synth))
		return
	}

	if strings.TrimSpace(*input) == "" {
		os.Stderr.WriteString("missing -in recording (or -synth to create one)\n")
		flag.Usage()
		os.Exit(2)
	}
	records, err := readRecording(*input)
	if err != nil {
		l.Error(ctx, "failed to read recording", logger.Error(err))
		os.Exit(1)
	}

	cfg := replay.Config{
		Endpoint:             *endpoint,
		StorePath:            *storePath,
		Speed:                *speed,
		PersistenceThreshold: *persist,
		LogCooldown:          *cooldown,
		Timeout:              *timeout,
	}
	if *quiet {
		cfg.Logger = logger.Nop()
	} else {
		cfg.Progress = os.Stderr
	}
	stats, err := replay.Run(ctx, cfg, records)
	if err != nil {
		l.Error(ctx, "replay failed", logger.Error(err))
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "frames=%d bad=%d alerts=%d forwarded=%d delivered=%d failed=%d duration=%s\n",
		stats.Frames, stats.BadFrames, stats.Alerts, stats.Forwarded, stats.Delivered, stats.Failed,
		stats.Duration.Round(time.Millisecond))
}

func readRecording(path string) ([]replay.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return replay.ReadRecording(f)
}

// writeSynthetic writes a recording with a slouch and a head tilt episode
// spaced further apart than the default cooldown.
func writeSynthetic(path string, seconds, fps int) error {
	total := time.Duration(seconds) * time.Second
	records := replay.Synthesize(replay.SynthConfig{
		Start:    time.Now(),
		Duration: total,
		FPS:      fps,
		Episodes: []replay.Episode{
			{Kind: replay.EpisodeSlouch, Start: total / 6, End: total / 3},
			{Kind: replay.EpisodeTilt, Start: total * 2 / 3, End: total * 5 / 6},
		},
		Seed: uint64(time.Now().UnixNano()),
	})
	if path == "-" {
		return replay.WriteRecording(os.Stdout, records)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := replay.WriteRecording(f, records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
