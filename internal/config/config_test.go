package config_test

import (
	"math"
	"testing"
	"time"

	"github.com/okian/posture/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should carry the analysis defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":3000")
			convey.So(cfg.SlouchThreshold, convey.ShouldEqual, 0.05)
			convey.So(cfg.TiltThresholdDeg, convey.ShouldEqual, 15)
			convey.So(cfg.PersistenceThresholdMS, convey.ShouldEqual, 1500)
			convey.So(cfg.LogCooldownMS, convey.ShouldEqual, 5000)
			convey.So(cfg.RetentionCap, convey.ShouldEqual, 1000)
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverFile)
		})

		convey.Convey("Then the derived values should be converted", func() {
			convey.So(cfg.TiltThreshold(), convey.ShouldAlmostEqual, 15*math.Pi/180, 1e-12)
			convey.So(cfg.PersistenceThreshold(), convey.ShouldEqual, 1500*time.Millisecond)
			convey.So(cfg.LogCooldown(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.SubmitTimeout(), convey.ShouldEqual, 5*time.Second)
		})

		convey.Convey("Then it should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the metrics defaults should keep the built-in buckets", func() {
			convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "posture")
			buckets, err := cfg.LatencyBuckets()
			convey.So(err, convey.ShouldBeNil)
			convey.So(buckets, convey.ShouldBeNil)
		})
	})
}
