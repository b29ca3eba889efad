package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode       string           `yaml:"mode"`
	Instrument InstrumentConfig `yaml:"instrument"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Exits      ExitConfig       `yaml:"exits"`
	Session    SessionConfig    `yaml:"session"`
	Costs      CostConfig       `yaml:"costs"`
	Risk       RiskConfig       `yaml:"risk"`
	Feed       FeedConfig       `yaml:"feed"`
	Broker     BrokerConfig     `yaml:"broker"`
	TradeLog   TradeLogConfig   `yaml:"tradelog"`
	Server     ServerConfig     `yaml:"server"`
	Sweep      SweepConfig      `yaml:"sweep"`
}

type InstrumentConfig struct {
	Symbol       string  `yaml:"symbol"`
	TickSize     float64 `yaml:"tick_size"`
	PointValue   float64 `yaml:"point_value"`
	ContractSize int     `yaml:"contract_size"`
}

type StrategyConfig struct {
	Variant             string  `yaml:"variant"`
	ChannelPeriod       int     `yaml:"channel_period"`
	ChannelLag          int     `yaml:"channel_lag"`
	BreakTolerancePts   float64 `yaml:"break_tolerance_pts"`
	EnableBounce        bool    `yaml:"enable_bounce"`
	EnableBreakout      bool    `yaml:"enable_breakout"`
	BreakoutMinPts      float64 `yaml:"breakout_min_pts"`
	MinThreeBarRangePts float64 `yaml:"min_three_bar_range_pts"`
	CandleMode          string  `yaml:"candle_mode"`
}

type ExitConfig struct {
	StopPts            float64 `yaml:"stop_pts"`
	TargetPts          float64 `yaml:"target_pts"`
	TrailActivationPts float64 `yaml:"trail_activation_pts"`
	TrailDistancePts   float64 `yaml:"trail_distance_pts"`
	MaxHoldBars        int     `yaml:"max_hold_bars"`
	FirstTouch         string  `yaml:"first_touch"`
	FlattenPrice       string  `yaml:"flatten_price"`
}

type SessionConfig struct {
	Kind               string `yaml:"kind"`
	Timezone           string `yaml:"timezone"`
	Open               string `yaml:"open"`
	Close              string `yaml:"close"`
	OpenWeekday        string `yaml:"open_weekday"`
	CloseWeekday       string `yaml:"close_weekday"`
	AutoFlattenMinutes int    `yaml:"auto_flatten_minutes"`
}

type CostConfig struct {
	CommissionPerRoundTrip float64 `yaml:"commission_per_round_trip"`
	SlippageTicks          float64 `yaml:"slippage_ticks"`
}

type RiskConfig struct {
	DailyLossLimit       float64 `yaml:"daily_loss_limit"`
	MaxTradesPerDay      int     `yaml:"max_trades_per_day"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
}

type FeedConfig struct {
	Provider            string           `yaml:"provider"`
	CSVPath             string           `yaml:"csv_path"`
	ResampleMinutes     int              `yaml:"resample_minutes"`
	ReconnectMaxSeconds int              `yaml:"reconnect_max_seconds"`
	ClickHouse          ClickHouseConfig `yaml:"clickhouse"`
	Kline               KlineConfig      `yaml:"kline"`
}

type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Table    string `yaml:"table"`
	Symbol   string `yaml:"symbol"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

type KlineConfig struct {
	URL string `yaml:"url"`
}

type BrokerConfig struct {
	Provider string     `yaml:"provider"`
	Kite     KiteConfig `yaml:"kite"`
}

type KiteConfig struct {
	InstrumentToken uint32 `yaml:"instrument_token"`
	Exchange        string `yaml:"exchange"`
	Tradingsymbol   string `yaml:"tradingsymbol"`
	Product         string `yaml:"product"`
	BarSeconds      int    `yaml:"bar_seconds"`
}

type TradeLogConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
	Postgres      bool   `yaml:"postgres"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

type SweepConfig struct {
	StopPts      []float64 `yaml:"stop_pts"`
	TargetPts    []float64 `yaml:"target_pts"`
	TrailLeadPts float64   `yaml:"trail_lead_pts"`
	Workers      int       `yaml:"workers"`
}

var weekdays = map[string]time.Weekday{
	"SUNDAY": time.Sunday, "MONDAY": time.Monday, "TUESDAY": time.Tuesday,
	"WEDNESDAY": time.Wednesday, "THURSDAY": time.Thursday, "FRIDAY": time.Friday,
	"SATURDAY": time.Saturday,
}

// ParseWeekday accepts full English day names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (c *Config) Validate() error {
	switch c.Mode {
	case "BACKTEST", "SHADOW", "LIVE":
	default:
		return fmt.Errorf("invalid mode '%s': must be 'BACKTEST', 'SHADOW' or 'LIVE'", c.Mode)
	}
	if c.Instrument.PointValue <= 0 {
		return fmt.Errorf("instrument.point_value must be positive, got %.4f", c.Instrument.PointValue)
	}
	if c.Instrument.ContractSize < 1 {
		return fmt.Errorf("instrument.contract_size must be at least 1, got %d", c.Instrument.ContractSize)
	}
	if c.Instrument.TickSize < 0 {
		return errors.New("instrument.tick_size cannot be negative")
	}

	switch c.Strategy.Variant {
	case "DONCHIAN_FAILED_TEST", "THREE_BAR_SCALP":
	default:
		return fmt.Errorf("strategy.variant must be 'DONCHIAN_FAILED_TEST' or 'THREE_BAR_SCALP', got '%s'", c.Strategy.Variant)
	}
	if c.Strategy.ChannelPeriod < 1 {
		return fmt.Errorf("strategy.channel_period must be at least 1, got %d", c.Strategy.ChannelPeriod)
	}
	if c.Strategy.ChannelLag < 0 {
		return fmt.Errorf("strategy.channel_lag cannot be negative, got %d", c.Strategy.ChannelLag)
	}
	if c.Strategy.BreakTolerancePts < 0 || c.Strategy.MinThreeBarRangePts < 0 || c.Strategy.BreakoutMinPts < 0 {
		return errors.New("strategy tolerances cannot be negative")
	}
	if c.Strategy.CandleMode != "STANDARD" && c.Strategy.CandleMode != "HEIKIN_ASHI" {
		return fmt.Errorf("strategy.candle_mode must be 'STANDARD' or 'HEIKIN_ASHI', got '%s'", c.Strategy.CandleMode)
	}

	if c.Exits.StopPts <= 0 || c.Exits.TargetPts <= 0 {
		return fmt.Errorf("exits.stop_pts and exits.target_pts must be positive, got %.2f/%.2f", c.Exits.StopPts, c.Exits.TargetPts)
	}
	if c.Exits.TrailActivationPts < 0 || c.Exits.TrailDistancePts < 0 {
		return errors.New("exits trailing parameters cannot be negative")
	}
	if c.Exits.MaxHoldBars < 0 {
		return fmt.Errorf("exits.max_hold_bars cannot be negative, got %d", c.Exits.MaxHoldBars)
	}
	if c.Exits.FirstTouch != "STOP_FIRST" && c.Exits.FirstTouch != "TARGET_FIRST" {
		return fmt.Errorf("exits.first_touch must be 'STOP_FIRST' or 'TARGET_FIRST', got '%s'", c.Exits.FirstTouch)
	}
	if c.Exits.FlattenPrice != "OPEN" && c.Exits.FlattenPrice != "CLOSE" {
		return fmt.Errorf("exits.flatten_price must be 'OPEN' or 'CLOSE', got '%s'", c.Exits.FlattenPrice)
	}

	if err := c.Session.validate(); err != nil {
		return err
	}

	if c.Costs.CommissionPerRoundTrip < 0 || c.Costs.SlippageTicks < 0 {
		return errors.New("costs cannot be negative")
	}
	if c.Risk.DailyLossLimit < 0 || c.Risk.MaxTradesPerDay < 0 || c.Risk.MaxConsecutiveLosses < 0 {
		return errors.New("risk limits cannot be negative")
	}

	switch c.Feed.Provider {
	case "CSV", "CLICKHOUSE", "KLINE_WS", "KITE":
	default:
		return fmt.Errorf("feed.provider must be one of CSV, CLICKHOUSE, KLINE_WS, KITE, got '%s'", c.Feed.Provider)
	}
	if c.Feed.ResampleMinutes < 0 {
		return errors.New("feed.resample_minutes cannot be negative")
	}
	if c.Broker.Provider != "PAPER" && c.Broker.Provider != "KITE" {
		return fmt.Errorf("broker.provider must be 'PAPER' or 'KITE', got '%s'", c.Broker.Provider)
	}
	if c.Mode == "LIVE" && c.Broker.Provider != "KITE" {
		return errors.New("mode LIVE requires broker.provider KITE; use SHADOW for paper fills")
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if s.Kind != "RTH" && s.Kind != "CONTINUOUS" {
		return fmt.Errorf("session.kind must be 'RTH' or 'CONTINUOUS', got '%s'", s.Kind)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("session.timezone: %w", err)
	}
	open, err := ParseClock(s.Open)
	if err != nil {
		return fmt.Errorf("session.open: %w", err)
	}
	closeAt, err := ParseClock(s.Close)
	if err != nil {
		return fmt.Errorf("session.close: %w", err)
	}
	if s.Kind == "RTH" && open >= closeAt {
		return fmt.Errorf("session.open %s must be before session.close %s", s.Open, s.Close)
	}
	if s.Kind == "CONTINUOUS" {
		if _, err := ParseWeekday(s.OpenWeekday); err != nil {
			return fmt.Errorf("session.open_weekday: %w", err)
		}
		if _, err := ParseWeekday(s.CloseWeekday); err != nil {
			return fmt.Errorf("session.close_weekday: %w", err)
		}
	}
	if s.AutoFlattenMinutes < 0 {
		return fmt.Errorf("session.auto_flatten_minutes cannot be negative, got %d", s.AutoFlattenMinutes)
	}
	return nil
}

// ApplyDefaults fills every field whose zero value is not meaningful.
// Zero trailing, hold and risk settings stay zero: they mean "disabled".
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "BACKTEST"
	}
	if c.Instrument.Symbol == "" {
		c.Instrument.Symbol = "MNQ"
	}
	if c.Instrument.ContractSize == 0 {
		c.Instrument.ContractSize = 1
	}
	if c.Strategy.Variant == "" {
		c.Strategy.Variant = "DONCHIAN_FAILED_TEST"
	}
	if c.Strategy.ChannelPeriod == 0 {
		c.Strategy.ChannelPeriod = 10
	}
	if c.Strategy.CandleMode == "" {
		c.Strategy.CandleMode = "STANDARD"
	}
	if c.Exits.FirstTouch == "" {
		c.Exits.FirstTouch = "STOP_FIRST"
	}
	if c.Exits.FlattenPrice == "" {
		c.Exits.FlattenPrice = "CLOSE"
	}
	if c.Session.Kind == "" {
		c.Session.Kind = "RTH"
	}
	if c.Session.Timezone == "" {
		c.Session.Timezone = "America/New_York"
	}
	if c.Session.Open == "" {
		c.Session.Open = "09:30"
	}
	if c.Session.Close == "" {
		c.Session.Close = "16:00"
	}
	if c.Session.OpenWeekday == "" {
		c.Session.OpenWeekday = "SUNDAY"
	}
	if c.Session.CloseWeekday == "" {
		c.Session.CloseWeekday = "FRIDAY"
	}
	if c.Feed.Provider == "" {
		c.Feed.Provider = "CSV"
	}
	if c.Feed.ReconnectMaxSeconds == 0 {
		c.Feed.ReconnectMaxSeconds = 30
	}
	if c.Broker.Provider == "" {
		c.Broker.Provider = "PAPER"
	}
	if c.Broker.Kite.Product == "" {
		c.Broker.Kite.Product = "NRML"
	}
	if c.Broker.Kite.BarSeconds == 0 {
		c.Broker.Kite.BarSeconds = 60
	}
	if c.TradeLog.Dir == "" {
		c.TradeLog.Dir = "logs"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Sweep.Workers == 0 {
		c.Sweep.Workers = 4
	}
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.ApplyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
