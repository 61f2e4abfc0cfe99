package replay

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/okian/posture/internal/domain/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record types in a recording.
const (
	RecordFrame     = "frame"
	RecordCalibrate = "calibrate"
)

// maxLineSize fits a full 478-point mesh with room to spare.
const maxLineSize = 1 << 20

// Record is one line of a JSONL recording. An empty Type means a frame.
type Record struct {
	TS        int64               `json:"ts"`
	Type      string              `json:"type,omitempty"`
	Landmarks model.LandmarkFrame `json:"landmarks,omitempty"`
}

// IsCalibrate reports whether the record requests recalibration.
func (r Record) IsCalibrate() bool {
	return r.Type == RecordCalibrate
}

// ReadRecording parses a JSONL recording. Blank lines are skipped.
func ReadRecording(r io.Reader) ([]Record, error) {
	var records []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.UnmarshalFromString(text, &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrBadRecording, line, err)
		}
		switch rec.Type {
		case "", RecordFrame, RecordCalibrate:
		default:
			return nil, fmt.Errorf("%w: line %d: unknown type %q", ErrBadRecording, line, rec.Type)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRecording, err)
	}
	return records, nil
}

// WriteRecording writes records as JSONL.
func WriteRecording(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
		if _, err := bw.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return bw.Flush()
}
