package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/posture/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		// Point dotenv at a file that does not exist so a stray .env cannot leak in.
		_ = os.Setenv("POSTURE_DOTENV", filepath.Join(t.TempDir(), "missing.env"))
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":3000")
				convey.So(cfg.RetentionCap, convey.ShouldEqual, 1000)
				convey.So(cfg.LogCooldownMS, convey.ShouldEqual, 5000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("POSTURE_ADDR", ":8080")
			_ = os.Setenv("POSTURE_LOG_COOLDOWN_MS", "2000")
			_ = os.Setenv("POSTURE_SLOUCH_THRESHOLD", "0.08")
			_ = os.Setenv("POSTURE_LOG_JSON", "true")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.LogCooldownMS, convey.ShouldEqual, 2000)
				convey.So(cfg.SlouchThreshold, convey.ShouldEqual, 0.08)
				convey.So(cfg.LogJSON, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
retention_cap: 50
persistence_threshold_ms: 2000
store_driver: sqlite
store_path: /tmp/posture.db
`)
			_ = os.Setenv("POSTURE_CONFIG", tmpFile)
			_ = os.Setenv("POSTURE_ADDR", ":8081")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8081")
				convey.So(cfg.RetentionCap, convey.ShouldEqual, 50)
				convey.So(cfg.PersistenceThresholdMS, convey.ShouldEqual, 2000)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverSQLite)
				convey.So(cfg.TiltThresholdDeg, convey.ShouldEqual, 15)
			})
		})

		convey.Convey("When loading values from a .env file", func() {
			dir := t.TempDir()
			dotenv := filepath.Join(dir, "posture.env")
			convey.So(os.WriteFile(dotenv, []byte("POSTURE_RETENTION_CAP=25\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("POSTURE_DOTENV", dotenv)

			cfg, err := config.Load(ctx)

			convey.Convey("Then they should be applied like environment variables", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.RetentionCap, convey.ShouldEqual, 25)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("POSTURE_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("POSTURE_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("POSTURE_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When selecting redis without an address", func() {
			_ = os.Setenv("POSTURE_STORE_DRIVER", "redis")

			_, err := config.Load(ctx)

			convey.Convey("Then it should require redis_addr", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "redisaddr")
			})
		})

		convey.Convey("When loading an unknown store driver", func() {
			_ = os.Setenv("POSTURE_STORE_DRIVER", "postgres")

			_, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("POSTURE_RETENTION_CAP", "invalid")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When metrics settings come from the environment", func() {
			_ = os.Setenv("POSTURE_METRICS_NAMESPACE", "desk")
			_ = os.Setenv("POSTURE_METRICS_LATENCY_BUCKETS_MS", "1, 10,100")

			cfg, err := config.Load(ctx)

			convey.Convey("Then the namespace and buckets should be applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "desk")
				buckets, err := cfg.LatencyBuckets()
				convey.So(err, convey.ShouldBeNil)
				convey.So(buckets, convey.ShouldResemble, []float64{1, 10, 100})
			})
		})

		convey.Convey("When latency buckets are not increasing", func() {
			_ = os.Setenv("POSTURE_METRICS_LATENCY_BUCKETS_MS", "10,5")

			_, err := config.Load(ctx)

			convey.Convey("Then validation should fail", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a latency bucket is not a number", func() {
			_ = os.Setenv("POSTURE_METRICS_LATENCY_BUCKETS_MS", "1,fast")

			_, err := config.Load(ctx)

			convey.Convey("Then validation should fail", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading a non-positive retention cap", func() {
			_ = os.Setenv("POSTURE_RETENTION_CAP", "0")

			_, err := config.Load(ctx)

			convey.Convey("Then validation should fail", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"POSTURE_CONFIG",
		"POSTURE_DOTENV",
		"POSTURE_ADDR",
		"POSTURE_LOG_COOLDOWN_MS",
		"POSTURE_SLOUCH_THRESHOLD",
		"POSTURE_LOG_JSON",
		"POSTURE_RETENTION_CAP",
		"POSTURE_STORE_DRIVER",
		"POSTURE_METRICS_NAMESPACE",
		"POSTURE_METRICS_LATENCY_BUCKETS_MS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "posture-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
