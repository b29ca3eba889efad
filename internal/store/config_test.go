package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
instrument:
  point_value: 2
exits:
  stop_pts: 8
  target_pts: 12
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mode != "BACKTEST" {
		t.Fatalf("mode = %q, want BACKTEST", cfg.Mode)
	}
	if cfg.Strategy.ChannelPeriod != 10 || cfg.Strategy.Variant != "DONCHIAN_FAILED_TEST" {
		t.Fatalf("strategy defaults not applied: %+v", cfg.Strategy)
	}
	if cfg.Session.Timezone != "America/New_York" || cfg.Session.Open != "09:30" || cfg.Session.Close != "16:00" {
		t.Fatalf("session defaults not applied: %+v", cfg.Session)
	}
	if cfg.Exits.TrailDistancePts != 0 || cfg.Exits.MaxHoldBars != 0 {
		t.Fatalf("disabled-by-zero settings must stay zero: %+v", cfg.Exits)
	}
}

func TestLoadConfigExampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig(config.yaml): %v", err)
	}
	if cfg.Session.Kind != "CONTINUOUS" || cfg.Session.AutoFlattenMinutes != 5 {
		t.Fatalf("unexpected session: %+v", cfg.Session)
	}
	if len(cfg.Sweep.TargetPts) != 11 {
		t.Fatalf("sweep targets = %v", cfg.Sweep.TargetPts)
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() Config {
		c := Config{}
		c.Instrument.PointValue = 2
		c.Exits.StopPts = 4
		c.Exits.TargetPts = 4
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"mode", func(c *Config) { c.Mode = "PAPER" }, "invalid mode"},
		{"point value", func(c *Config) { c.Instrument.PointValue = 0 }, "point_value"},
		{"variant", func(c *Config) { c.Strategy.Variant = "RSI" }, "strategy.variant"},
		{"channel lag", func(c *Config) { c.Strategy.ChannelLag = -1 }, "channel_lag"},
		{"breakout min", func(c *Config) { c.Strategy.BreakoutMinPts = -2 }, "tolerances"},
		{"stop", func(c *Config) { c.Exits.StopPts = 0 }, "stop_pts"},
		{"first touch", func(c *Config) { c.Exits.FirstTouch = "BOTH" }, "first_touch"},
		{"timezone", func(c *Config) { c.Session.Timezone = "Mars/Olympus" }, "session.timezone"},
		{"rth window", func(c *Config) { c.Session.Open = "16:00"; c.Session.Close = "09:30" }, "must be before"},
		{"weekday", func(c *Config) { c.Session.Kind = "CONTINUOUS"; c.Session.OpenWeekday = "Funday" }, "open_weekday"},
		{"live needs kite", func(c *Config) { c.Mode = "LIVE" }, "requires broker.provider KITE"},
		{"risk", func(c *Config) { c.Risk.MaxTradesPerDay = -1 }, "risk limits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			if err := c.Validate(); err != nil {
				t.Fatalf("base config invalid: %v", err)
			}
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestParseClockAndWeekday(t *testing.T) {
	m, err := ParseClock("18:05")
	if err != nil || m != 18*60+5 {
		t.Fatalf("ParseClock = %d, %v", m, err)
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Fatalf("expected error for 25:00")
	}
	d, err := ParseWeekday("friday")
	if err != nil || d.String() != "Friday" {
		t.Fatalf("ParseWeekday = %v, %v", d, err)
	}
}
