package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisKey  = "posture:logs"
	redisPingTimeout = 5 * time.Second
)

// RedisStore keeps entries as JSON strings in a Redis list.
type RedisStore struct {
	settings
	client *redis.Client
	key    string
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, key string, opts ...Option) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: redis address is required", ErrStore)
	}
	if key == "" {
		key = defaultRedisKey
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: connect to redis at %s: %w", ErrStore, addr, err)
	}

	s := &RedisStore{settings: newSettings(opts), client: client, key: key}
	total, err := client.LLen(ctx, key).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: length of %s: %w", ErrStore, key, err)
	}
	s.count.Store(total)
	return s, nil
}

// Append pushes the entry and trims the list inside MULTI/EXEC.
func (s *RedisStore) Append(ctx context.Context, sub model.Submission) (model.LogEntry, error) {
	start := time.Now()
	e, err := s.build(sub)
	if err != nil {
		return model.LogEntry{}, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return model.LogEntry{}, fmt.Errorf("%w: encode: %w", ErrStore, err)
	}

	var length *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.key, data)
		pipe.LTrim(ctx, s.key, int64(-s.retention), -1)
		length = pipe.LLen(ctx, s.key)
		return nil
	})
	if err != nil {
		metrics.RecordStoreError(DriverRedis, "append")
		return model.LogEntry{}, fmt.Errorf("%w: redis append: %w", ErrStore, err)
	}
	s.appended(ctx, e, int(length.Val()), start)
	return e, nil
}

// List returns entries oldest first. Items that fail to decode are skipped.
func (s *RedisStore) List(ctx context.Context) []model.LogEntry {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		metrics.RecordStoreError(DriverRedis, "list")
		s.logger.Warn(ctx, "log list unreadable", logger.String("key", s.key), logger.Error(err))
		return []model.LogEntry{}
	}

	entries := make([]model.LogEntry, 0, len(raw))
	for _, item := range raw {
		var e model.LogEntry
		if err := json.UnmarshalFromString(item, &e); err != nil {
			s.logger.Warn(ctx, "skipping undecodable log entry", logger.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
