package replay

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/okian/posture/internal/domain/model"
)

// Episode kinds understood by Synthesize.
const (
	EpisodeSlouch = "slouch"
	EpisodeTilt   = "tilt"
)

// Synthetic posture offsets, well past the default thresholds.
const (
	meshSize     = 468
	uprightNoseY = 0.5
	slouchDrop   = 0.08
	tiltRadians  = 0.35
	eyeSpan      = 0.2
	jitterScale  = 0.002
)

// Episode is a stretch of bad posture inside a synthetic recording.
type Episode struct {
	Kind  string
	Start time.Duration
	End   time.Duration
}

// SynthConfig describes a synthetic recording.
type SynthConfig struct {
	Start    time.Time
	Duration time.Duration
	FPS      int
	Episodes []Episode
	Seed     uint64
}

// Synthesize builds a recording of an upright subject with the configured
// bad-posture episodes. The first frame is always upright so it becomes the
// baseline.
func Synthesize(cfg SynthConfig) []Record {
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}
	step := time.Second / time.Duration(cfg.FPS)
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	var records []Record
	for offset := time.Duration(0); offset <= cfg.Duration; offset += step {
		noseY, tilt := uprightNoseY, 0.0
		if offset > 0 {
			switch episodeAt(cfg.Episodes, offset) {
			case EpisodeSlouch:
				noseY += slouchDrop
			case EpisodeTilt:
				tilt = tiltRadians
			}
		}
		jitter := (rng.Float64() - 0.5) * jitterScale
		records = append(records, Record{
			TS:        cfg.Start.Add(offset).UnixMilli(),
			Type:      RecordFrame,
			Landmarks: mesh(noseY+jitter, tilt),
		})
	}
	return records
}

func episodeAt(episodes []Episode, offset time.Duration) string {
	for _, e := range episodes {
		if offset >= e.Start && offset <= e.End {
			return e.Kind
		}
	}
	return ""
}

func mesh(noseY, tilt float64) model.LandmarkFrame {
	frame := make(model.LandmarkFrame, meshSize)
	left := model.Point{X: 0.4, Y: 0.4}
	frame[model.NoseTipIndex] = model.Point{X: 0.5, Y: noseY}
	frame[model.LeftEyeIndex] = left
	frame[model.RightEyeIndex] = model.Point{
		X: left.X + eyeSpan*math.Cos(tilt),
		Y: left.Y + eyeSpan*math.Sin(tilt),
	}
	return frame
}
