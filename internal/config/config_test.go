package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/refbench/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DBDriver, convey.ShouldEqual, config.DriverSQLite)
			convey.So(cfg.CacheTTL(), convey.ShouldEqual, 24*time.Hour)
			convey.So(cfg.RefereeTimeout(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.PopulationWorkers, convey.ShouldEqual, runtime.NumCPU()*4)
			convey.So(cfg.PeerCandidateCap, convey.ShouldEqual, 20)
			convey.So(cfg.ScoreWeights.Quality, convey.ShouldEqual, 0.30)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with invalid settings", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":        func(c *config.Config) { c.Addr = "" },
			"zero ttl":          func(c *config.Config) { c.CacheTTLHours = 0 },
			"zero workers":      func(c *config.Config) { c.PopulationWorkers = 0 },
			"unknown driver":    func(c *config.Config) { c.DBDriver = "oracle" },
			"missing dsn":       func(c *config.Config) { c.DBDriver = config.DriverMySQL; c.DBDSN = "" },
			"negative weight":   func(c *config.Config) { c.ScoreWeights.Speed = -1 },
			"zero weights":      func(c *config.Config) { c.ScoreWeights = config.ScoreWeights{} },
			"confidence over 1": func(c *config.Config) { c.ExpertiseMinConfidence = 1.5 },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()

			convey.Convey("Then "+name+" is rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("Then the memory driver needs no dsn", func() {
			cfg := config.New()
			cfg.DBDriver = config.DriverMemory
			cfg.DBDSN = ""
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
