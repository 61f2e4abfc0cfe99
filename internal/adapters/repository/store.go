// Package repository persists accepted log entries with bounded retention.
//
// Every backend keeps the most recent entries in insertion order and
// serializes appends. List reads an unreadable store as empty; Append fails
// instead of overwriting data it could not read.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// Driver names accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Store provides durable append and full read-back of log entries.
type Store interface {
	// Append validates s, stamps it with an id and receivedAt, and persists it
	// before returning. Returns ErrInvalidEntry for a malformed submission.
	Append(ctx context.Context, s model.Submission) (model.LogEntry, error)

	// List returns the retained entries oldest first. It never fails: an
	// unreadable store yields an empty slice.
	List(ctx context.Context) []model.LogEntry

	// Count returns the retained total without reading entries back.
	Count() int

	Close() error
}

// Target selects and addresses a backend.
type Target struct {
	Driver    string
	Path      string
	RedisAddr string
	RedisKey  string
}

// Open constructs the backend named by t.Driver.
func Open(ctx context.Context, t Target, opts ...Option) (Store, error) {
	switch strings.ToLower(t.Driver) {
	case "", DriverFile:
		return NewFileStore(t.Path, opts...)
	case DriverSQLite:
		return NewSQLiteStore(ctx, t.Path, opts...)
	case DriverRedis:
		return NewRedisStore(ctx, t.RedisAddr, t.RedisKey, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, t.Driver)
	}
}

// build validates s and turns it into a stored entry.
func (s *settings) build(sub model.Submission) (model.LogEntry, error) {
	if sub.Timestamp <= 0 {
		return model.LogEntry{}, fmt.Errorf("%w: timestamp is required", ErrInvalidEntry)
	}
	if strings.TrimSpace(sub.Message) == "" {
		return model.LogEntry{}, fmt.Errorf("%w: message is required", ErrInvalidEntry)
	}
	switch sub.Type {
	case "":
		sub.Type = model.EntryBadPosture
	case model.EntryBadPosture:
	default:
		return model.LogEntry{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidEntry, sub.Type)
	}

	return model.LogEntry{
		ID:         s.newID(),
		Timestamp:  sub.Timestamp,
		Message:    sub.Message,
		Type:       sub.Type,
		ReceivedAt: s.now().UTC(),
	}, nil
}

// trim keeps the most recent retention entries.
func (s *settings) trim(entries []model.LogEntry) []model.LogEntry {
	if over := len(entries) - s.retention; over > 0 {
		return append(entries[:0:0], entries[over:]...)
	}
	return entries
}

// Count implements Store.
func (s *settings) Count() int {
	return int(s.count.Load())
}

// appended records the bookkeeping common to every successful append.
func (s *settings) appended(ctx context.Context, e model.LogEntry, total int, start time.Time) {
	metrics.RecordStoreAppendLatency(float64(time.Since(start).Milliseconds()))
	s.count.Store(int64(total))
	metrics.UpdateStoreEntries(total)
	s.logger.Info(ctx, "log entry stored",
		logger.String("id", e.ID),
		logger.String("type", string(e.Type)),
		logger.String("message", e.Message),
	)
}
