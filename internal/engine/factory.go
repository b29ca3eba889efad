package engine

import (
	"fmt"
	"time"

	"don-futures/internal/broker/paper"
	"don-futures/internal/interfaces"
	"don-futures/internal/store"
	"don-futures/internal/strategy"
)

type options struct {
	gateway   interfaces.OrderGateway
	detector  interfaces.Detector
	sinks     []interfaces.TradeSink
	metrics   bool
	logTrades bool
	clock     func() time.Time
}

type Option func(*options)

// WithGateway routes orders to gw. The default is a paper gateway that
// fills entries at the next bar's open.
func WithGateway(gw interfaces.OrderGateway) Option {
	return func(o *options) { o.gateway = gw }
}

// WithDetector overrides the detector built from the strategy config.
func WithDetector(d interfaces.Detector) Option {
	return func(o *options) { o.detector = d }
}

func WithTradeSink(sinks ...interfaces.TradeSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// WithMetrics records bars, signals, order events and trades in the
// process-wide Prometheus registry.
func WithMetrics() Option {
	return func(o *options) { o.metrics = true }
}

// WithTradeLogging logs every signal, fill and closed trade at info level.
// Backtests leave it off.
func WithTradeLogging() Option {
	return func(o *options) { o.logTrades = true }
}

// WithClock replaces time.Now for the live session timer.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func build(cfg *store.Config, opts []Option) (*core, *options, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("engine: nil config")
	}
	o := &options{clock: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.detector == nil {
		d, err := strategy.Build(cfg.Strategy)
		if err != nil {
			return nil, nil, err
		}
		o.detector = d
	}
	if o.gateway == nil {
		o.gateway = paper.New()
	}
	c, err := newCore(cfg, o)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: %w", err)
	}
	return c, o, nil
}

func NewBacktest(cfg *store.Config, src interfaces.BarSource, opts ...Option) (*BacktestEngine, error) {
	c, _, err := build(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &BacktestEngine{core: c, src: src}, nil
}

func NewLive(cfg *store.Config, src interfaces.BarSource, opts ...Option) (*LiveEngine, error) {
	c, o, err := build(cfg, opts)
	if err != nil {
		return nil, err
	}
	e := &LiveEngine{core: c, src: src, clock: o.clock}
	e.publish()
	return e, nil
}
