package config

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	c := qt.New(t)
	t.Setenv("DUPLICATE_WINDOW", "")
	t.Setenv("DEFAULT_CURRENCY", "")

	cfg, err := load(viper.New())
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Port, qt.Equals, "8080")
	c.Assert(cfg.DefaultCurrency, qt.Equals, "inr")
	c.Assert(cfg.DefaultFeeType, qt.Equals, "Monthly Rent")
	c.Assert(cfg.DuplicateWindow, qt.Equals, 10*time.Minute)
	c.Assert(cfg.ConsistencyDelay, qt.Equals, 2*time.Second)
	c.Assert(cfg.IsProduction(), qt.IsFalse)
	c.Assert(cfg.RequireDatabase(), qt.Not(qt.IsNil))
}

func TestLoadFromEnvironment(t *testing.T) {
	c := qt.New(t)
	t.Setenv("ENV", "production")
	t.Setenv("DEFAULT_CURRENCY", "USD")
	t.Setenv("DUPLICATE_WINDOW", "90s")
	t.Setenv("APP_ORIGIN", "https://hostel.example.com/")
	t.Setenv("DATABASE_URL", "postgres://localhost/hostel")

	cfg, err := load(viper.New())
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.IsProduction(), qt.IsTrue)
	c.Assert(cfg.DefaultCurrency, qt.Equals, "usd")
	c.Assert(cfg.DuplicateWindow, qt.Equals, 90*time.Second)
	c.Assert(cfg.AppOrigin, qt.Equals, "https://hostel.example.com")
	c.Assert(cfg.RequireDatabase(), qt.IsNil)
}

func TestLoadRejectsNegativeDurations(t *testing.T) {
	c := qt.New(t)
	t.Setenv("CONSISTENCY_DELAY", "-1s")

	_, err := load(viper.New())
	c.Assert(err, qt.ErrorMatches, ".*must not be negative")
}
