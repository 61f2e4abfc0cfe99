package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// readFile is swapped in tests to simulate I/O failures.
var readFile = os.ReadFile

// FileStore keeps all entries as one JSON array in a flat file.
type FileStore struct {
	settings
	path string
	mu   sync.Mutex
}

// NewFileStore opens the store at path, creating it as an empty array if
// absent.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: file path is required", ErrStore)
	}
	s := &FileStore{settings: newSettings(opts), path: path}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrStore, err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.write(nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrStore, path, err)
	}
	if entries, err := s.read(); err == nil {
		s.count.Store(int64(len(entries)))
	}
	return s, nil
}

// Append adds an entry under the store lock.
func (s *FileStore) Append(ctx context.Context, sub model.Submission) (model.LogEntry, error) {
	start := time.Now()
	e, err := s.build(sub)
	if err != nil {
		return model.LogEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	switch {
	case errors.Is(err, errCorruptFile):
		// A corrupt file is replaced by the next successful write.
		s.logger.Warn(ctx, "log file corrupt, starting over", logger.String("path", s.path), logger.Error(err))
		entries = nil
	case err != nil:
		metrics.RecordStoreError(DriverFile, "append")
		return model.LogEntry{}, err
	}
	entries = s.trim(append(entries, e))

	if err := s.write(entries); err != nil {
		metrics.RecordStoreError(DriverFile, "append")
		return model.LogEntry{}, err
	}
	s.appended(ctx, e, len(entries), start)
	return e, nil
}

// List returns all retained entries, or an empty slice if the file cannot be
// read or parsed.
func (s *FileStore) List(ctx context.Context) []model.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		metrics.RecordStoreError(DriverFile, "list")
		s.logger.Warn(ctx, "log file unreadable", logger.String("path", s.path), logger.Error(err))
		return []model.LogEntry{}
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	return entries
}

// Close is a no-op; every append is already on disk.
func (s *FileStore) Close() error {
	return nil
}

// read returns ErrStore when the file cannot be read and errCorruptFile when
// its contents do not parse. A missing file reads as empty.
func (s *FileStore) read() ([]model.LogEntry, error) {
	data, err := readFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStore, s.path, err)
	}
	var entries []model.LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", errCorruptFile, s.path, err)
	}
	return entries, nil
}

// write replaces the file atomically via a sibling temp file.
func (s *FileStore) write(entries []model.LogEntry) error {
	if entries == nil {
		entries = []model.LogEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrStore, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrStore, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // best effort after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write temp file: %w", ErrStore, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %w", ErrStore, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrStore, s.path, err)
	}
	return nil
}
