// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional file and the environment.
// - External errors must be wrapped via this package's error kinds.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by StoreDriver.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFile, when set, tees logs into a rotating file.
	LogFile string `koanf:"log_file"`

	// LogJSON switches log output to JSON lines.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":3000".
	Addr string `koanf:"addr" validate:"required"`

	// SlouchThreshold is the nose drop, in normalized frame units, that counts as slouching.
	SlouchThreshold float64 `koanf:"slouch_threshold" validate:"gt=0"`

	// TiltThresholdDeg is the eye-line rotation, in degrees, that counts as a tilted head.
	TiltThresholdDeg float64 `koanf:"tilt_threshold_deg" validate:"gt=0,lt=180"`

	// PersistenceThresholdMS is how long bad posture must last before the alert fires.
	PersistenceThresholdMS int `koanf:"persistence_threshold_ms" validate:"gte=0"`

	// LogCooldownMS is the minimum gap between two forwarded log submissions.
	LogCooldownMS int `koanf:"log_cooldown_ms" validate:"gte=0"`

	// RetentionCap bounds the number of stored log entries.
	RetentionCap int `koanf:"retention_cap" validate:"gt=0"`

	// StoreDriver selects the log store backend: file, sqlite or redis.
	StoreDriver string `koanf:"store_driver" validate:"oneof=file sqlite redis"`

	// StorePath is the JSON file (file driver) or database path (sqlite driver).
	StorePath string `koanf:"store_path" validate:"required_unless=StoreDriver redis"`

	// RedisAddr and RedisKey configure the redis driver.
	RedisAddr string `koanf:"redis_addr" validate:"required_if=StoreDriver redis"`
	RedisKey  string `koanf:"redis_key"`

	// LogEndpoint, when set, forwards submissions to a remote /api/log instead
	// of the in-process store.
	LogEndpoint string `koanf:"log_endpoint" validate:"omitempty,url"`

	// SubmitQueueSize bounds pending submissions; overflow is dropped.
	SubmitQueueSize int `koanf:"submit_queue_size" validate:"gt=0"`

	// SubmitWorkers is the number of goroutines delivering submissions.
	SubmitWorkers int `koanf:"submit_workers" validate:"gt=0"`

	// SubmitTimeoutMS caps a single delivery attempt.
	SubmitTimeoutMS int `koanf:"submit_timeout_ms" validate:"gt=0"`

	// MQTTBroker enables the MQTT alert notifier when set (host:port).
	MQTTBroker   string `koanf:"mqtt_broker"`
	MQTTTopic    string `koanf:"mqtt_topic"`
	MQTTClientID string `koanf:"mqtt_client_id"`

	// MetricsNamespace and MetricsSubsystem prefix every exported metric name.
	MetricsNamespace string `koanf:"metrics_namespace" validate:"required"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsLatencyBucketsMS is a comma separated list of histogram bounds
	// for store, delivery and HTTP latencies. Empty keeps the built-in layout.
	MetricsLatencyBucketsMS string `koanf:"metrics_latency_buckets_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":3000",
		SlouchThreshold:        0.05,
		TiltThresholdDeg:       15,
		PersistenceThresholdMS: 1500,
		LogCooldownMS:          5000,
		RetentionCap:           1000,
		StoreDriver:            DriverFile,
		StorePath:              "logs.json",
		RedisKey:               "posture:logs",
		SubmitQueueSize:        64,
		SubmitWorkers:          1,
		SubmitTimeoutMS:        5000,
		MQTTTopic:              "posture/alerts",
		MQTTClientID:           "posture-service",
		MetricsNamespace:       "posture",
	}
}

// TiltThreshold returns the tilt threshold in radians.
func (c *Config) TiltThreshold() float64 {
	return c.TiltThresholdDeg * math.Pi / 180
}

// PersistenceThreshold returns the debounce window.
func (c *Config) PersistenceThreshold() time.Duration {
	return time.Duration(c.PersistenceThresholdMS) * time.Millisecond
}

// LogCooldown returns the minimum gap between forwarded submissions.
func (c *Config) LogCooldown() time.Duration {
	return time.Duration(c.LogCooldownMS) * time.Millisecond
}

// SubmitTimeout returns the per-delivery timeout.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.SubmitTimeoutMS) * time.Millisecond
}

// LatencyBuckets parses MetricsLatencyBucketsMS. Bounds must be positive and
// strictly increasing; an empty value yields nil.
func (c *Config) LatencyBuckets() ([]float64, error) {
	raw := strings.TrimSpace(c.MetricsLatencyBucketsMS)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	buckets := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: metrics_latency_buckets_ms: %w", ErrInvalidConfig, err)
		}
		if v <= 0 || (len(buckets) > 0 && v <= buckets[len(buckets)-1]) {
			return nil, fmt.Errorf("%w: metrics_latency_buckets_ms must be positive and increasing", ErrInvalidConfig)
		}
		buckets = append(buckets, v)
	}
	return buckets, nil
}
