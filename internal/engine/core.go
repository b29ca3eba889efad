package engine

import (
	"context"
	"errors"
	"time"

	"don-futures/internal/channel"
	"don-futures/internal/interfaces"
	"don-futures/internal/logger"
	"don-futures/internal/metrics"
	"don-futures/internal/results"
	"don-futures/internal/session"
	"don-futures/internal/store"
	"don-futures/internal/types"
)

// ErrOutOfOrder marks a bar whose timestamp is not after the previous bar.
var ErrOutOfOrder = errors.New("bar out of order or duplicate")

// Snapshot is a read-only view of a run, published after every step.
type Snapshot struct {
	Symbol    string              `json:"symbol"`
	Strategy  string              `json:"strategy"`
	State     types.PositionState `json:"state"`
	Position  *types.Position     `json:"position,omitempty"`
	Channel   types.ChannelState  `json:"channel"`
	LastBar   types.Bar           `json:"last_bar"`
	Bars      int64               `json:"bars"`
	Rejected  int64               `json:"rejected"`
	Invalid   int64               `json:"invalid"`
	Summary   types.Summary       `json:"summary"`
	Recent    []types.Trade       `json:"recent_trades"`
	UpdatedAt time.Time           `json:"updated_at"`
}

const recentTrades = 50

type cancelledEntry struct {
	orderID string
	dir     types.Direction
}

// core is the step function shared by the backtest and live engines.
// It is not safe for concurrent use; each engine drives it from one
// goroutine.
type core struct {
	symbol   string
	tracker  *channel.Tracker
	detector interfaces.Detector
	gate     *session.Gate
	pm       *positionManager
	risk     *riskManager
	orders   *orderExecutor
	gateway  interfaces.OrderGateway
	agg      *results.Aggregator
	sinks    []interfaces.TradeSink

	metrics   bool
	logTrades bool

	inbox     []types.OrderEvent
	cancelled cancelledEntry
	lastTime  time.Time
	lastBar   types.Bar
	lastClose float64
	started   bool

	bars, rejected, invalid int64
}

func newCore(cfg *store.Config, o *options) (*core, error) {
	gate, err := session.New(cfg.Session)
	if err != nil {
		return nil, err
	}
	var adjuster interfaces.PriceAdjuster
	if s := newTickSlippage(cfg.Costs.SlippageTicks, cfg.Instrument.TickSize); s != nil {
		adjuster = s
	}
	return &core{
		symbol:    cfg.Instrument.Symbol,
		tracker:   channel.NewLagged(cfg.Strategy.ChannelPeriod, cfg.Strategy.ChannelLag),
		detector:  o.detector,
		gate:      gate,
		pm:        newPositionManager(cfg, o.detector.Name(), adjuster),
		risk:      newRiskManager(cfg.Risk),
		orders:    newOrderExecutor(o.gateway, cfg.Instrument.Symbol, cfg.Instrument.ContractSize),
		gateway:   o.gateway,
		agg:       results.New(),
		sinks:     o.sinks,
		metrics:   o.metrics,
		logTrades: o.logTrades,
	}, nil
}

// enqueue queues a gateway event for the next step.
func (c *core) enqueue(ev types.OrderEvent) {
	c.inbox = append(c.inbox, ev)
}

func (c *core) step(ctx context.Context, b types.Bar) types.StepResult {
	res := c.process(ctx, b)
	if c.metrics {
		metrics.ObserveBar(c.symbol, res)
	}
	return res
}

func (c *core) process(ctx context.Context, b types.Bar) types.StepResult {
	res := types.StepResult{Bar: b}

	if c.started && !b.Time.After(c.lastTime) {
		c.rejected++
		logger.Warn(ctx, "Rejected out-of-order bar",
			"symbol", c.symbol,
			"bar_time", b.Time,
			"last_time", c.lastTime,
		)
		res.Err = ErrOutOfOrder
		res.State = c.pm.current()
		return res
	}
	c.started = true
	c.lastTime = b.Time
	c.bars++
	res.Accepted = true

	open := c.gate.IsOpen(b.Time)
	flatten := c.gate.ShouldFlatten(b.Time)
	canEnter := open && !flatten
	startFlat := c.pm.current() == types.StateFlat

	c.applyEvents(ctx, b.Time, canEnter)
	if !canEnter && c.pm.current() == types.StatePendingEntry {
		c.cancelPending(ctx)
		logger.Debug(ctx, "Pending entry cancelled by session gate", "symbol", c.symbol, "bar_time", b.Time)
	}

	valid := validBar(b)
	if obs, ok := c.gateway.(interfaces.BarObserver); ok && valid {
		c.inbox = append(c.inbox, obs.OnBar(b)...)
		c.applyEvents(ctx, b.Time, canEnter)
	}

	if !valid {
		c.invalid++
		logger.Warn(ctx, "Skipping invalid bar",
			"symbol", c.symbol,
			"bar_time", b.Time,
			"open", b.Open, "high", b.High, "low", b.Low, "close", b.Close,
		)
		if c.lastClose > 0 {
			res.Trade = c.finish(ctx, c.pm.advance(b.Time, c.lastClose, flatten))
		}
		res.Channel = c.tracker.State()
		res.State = c.pm.current()
		return res
	}
	res.Valid = true
	c.lastBar = b
	c.lastClose = b.Close

	res.Channel = c.tracker.Update(b)

	if c.pm.current() == types.StateOpen {
		res.Trade = c.finish(ctx, c.pm.evaluate(b, flatten))
	}

	switch {
	case !open:
		c.detector.Reset()
	case startFlat && c.pm.current() == types.StateFlat:
		sig := c.detector.Detect(b, res.Channel)
		res.Signal = sig
		if !sig.IsNone() && canEnter {
			c.enter(ctx, sig, b)
		}
	default:
		// A break seen while in a trade must not become a setup once flat.
		c.detector.Observe(b, res.Channel)
	}

	res.State = c.pm.current()
	if logger.IsDebugEnabled() {
		logger.Debug(ctx, "Bar processed",
			"symbol", c.symbol,
			"bar_time", b.Time,
			"close", b.Close,
			"upper", res.Channel.Upper,
			"lower", res.Channel.Lower,
			"signal", res.Signal.Kind.String(),
			"state", string(res.State),
		)
	}
	return res
}

func (c *core) applyEvents(ctx context.Context, at time.Time, canEnter bool) {
	if len(c.inbox) == 0 {
		return
	}
	for _, ev := range c.inbox {
		if c.metrics {
			metrics.ObserveOrderEvent(c.symbol, ev)
		}
		switch {
		case ev.Kind == types.OrderFilled && ev.OrderID == c.pm.lastFilled:
			logger.Debug(ctx, "Duplicate fill ignored", "symbol", c.symbol, "order_id", ev.OrderID)

		case ev.Kind == types.OrderFilled && c.cancelled.orderID != "" && ev.OrderID == c.cancelled.orderID:
			logger.Warn(ctx, "Cancelled entry filled; offsetting",
				"symbol", c.symbol,
				"order_id", ev.OrderID,
				"price", ev.Price,
			)
			c.offsetLateFill(ctx, ev, c.cancelled.dir)
			c.cancelled = cancelledEntry{}

		case c.pm.current() != types.StatePendingEntry || ev.OrderID != c.pm.pendingOrder():
			logger.Warn(ctx, "Order event for unknown or cancelled order",
				"symbol", c.symbol,
				"order_id", ev.OrderID,
				"kind", string(ev.Kind),
			)

		case ev.Kind == types.OrderRejected:
			c.pm.cancelEntry()
			logger.Warn(ctx, "Entry order rejected",
				"symbol", c.symbol,
				"order_id", ev.OrderID,
				"message", ev.Message,
			)

		case !canEnter:
			// Filled at the broker after the session stopped taking entries.
			dir := c.pm.pendingDirection()
			c.pm.cancelEntry()
			logger.Warn(ctx, "Entry filled after session gate closed; offsetting",
				"symbol", c.symbol,
				"order_id", ev.OrderID,
				"price", ev.Price,
			)
			c.offsetLateFill(ctx, ev, dir)

		default:
			c.pm.fill(ev)
			c.risk.onEntry(c.gate.TradingDay(at))
			if p := c.pm.position(); p != nil && c.logTrades {
				logger.Info(ctx, "Position opened",
					"symbol", c.symbol,
					"position_id", p.ID,
					"direction", p.Direction.String(),
					"entry", p.EntryPrice,
					"stop", p.StopPrice,
					"target", p.TargetPrice,
				)
			}
		}
	}
	c.inbox = c.inbox[:0]
}

// cancelPending withdraws the working entry. The order is remembered so a
// fill that races the cancel is still offset.
func (c *core) cancelPending(ctx context.Context) {
	c.cancelled = cancelledEntry{orderID: c.pm.pendingOrder(), dir: c.pm.pendingDirection()}
	c.orders.cancel(ctx, c.cancelled.orderID)
	c.pm.cancelEntry()
}

func (c *core) offsetLateFill(ctx context.Context, ev types.OrderEvent, dir types.Direction) {
	req := types.OrderRequest{
		Symbol:    c.symbol,
		Intent:    types.IntentExit,
		Direction: -dir,
		Size:      c.orders.size,
		Time:      ev.Time,
		RefPrice:  ev.Price,
		Tag:       "LATE_FILL_OFFSET",
	}
	if _, err := c.gateway.Submit(ctx, req); err != nil {
		logger.ErrorWithErr(ctx, "Failed to offset late fill", err, "symbol", c.symbol, "order_id", ev.OrderID)
	}
}

func (c *core) enter(ctx context.Context, sig types.Signal, b types.Bar) {
	if !c.risk.allowEntry(ctx, c.symbol, c.gate.TradingDay(b.Time)) {
		return
	}
	id, err := c.orders.submitEntry(ctx, sig)
	if err != nil {
		return
	}
	c.pm.beginEntry(id, sig, b.Time)
	if c.metrics {
		metrics.ObserveSignal(c.symbol, sig)
	}
	if c.logTrades {
		logger.Signal(ctx, c.symbol, c.detector.Name(), sig.Kind.String(), b.Close,
			"reason", string(sig.Reason),
			"order_id", id,
			"bar_time", b.Time,
		)
	}
}

// finish books a closed trade everywhere it needs to go.
func (c *core) finish(ctx context.Context, t *types.Trade) *types.Trade {
	if t == nil {
		return nil
	}
	c.risk.onClose(c.gate.TradingDay(t.ExitTime), t)
	c.agg.Add(*t)
	c.orders.submitExit(ctx, t)

	for _, s := range c.sinks {
		if err := s.Record(ctx, *t); err != nil {
			logger.ErrorWithErr(ctx, "Failed to record trade", err, "symbol", c.symbol, "position_id", t.ID)
		}
	}
	if c.metrics {
		metrics.ObserveTrade(c.symbol, *t, c.agg.Summary().NetDollars)
	}
	if c.logTrades {
		logger.Trade(ctx, c.symbol, t.Direction.String(), string(t.ExitReason), t.Size,
			t.EntryPrice, t.ExitPrice, t.PnLDollars,
			"position_id", t.ID,
			"pnl_points", t.PnLPoints,
			"bars_held", t.BarsHeld,
		)
	}
	return t
}

// onSessionTimer flattens without a bar when the session boundary passes
// while the feed is quiet.
func (c *core) onSessionTimer(ctx context.Context, now time.Time) *types.Trade {
	if !c.gate.ShouldFlatten(now) {
		return nil
	}
	if c.pm.current() == types.StatePendingEntry {
		c.cancelPending(ctx)
		logger.Info(ctx, "Pending entry cancelled at session boundary", "symbol", c.symbol, "at", now)
	}
	if c.pm.current() != types.StateOpen {
		return nil
	}
	logger.Info(ctx, "Session timer flattening open position", "symbol", c.symbol, "at", now, "price", c.lastClose)
	return c.finish(ctx, c.pm.forceFlatten(c.lastClose, now))
}

func (c *core) snapshot() Snapshot {
	return Snapshot{
		Symbol:    c.symbol,
		Strategy:  c.detector.Name(),
		State:     c.pm.current(),
		Position:  c.pm.position(),
		Channel:   c.tracker.State(),
		LastBar:   c.lastBar,
		Bars:      c.bars,
		Rejected:  c.rejected,
		Invalid:   c.invalid,
		Summary:   c.agg.Summary(),
		Recent:    c.agg.Last(recentTrades),
		UpdatedAt: time.Now(),
	}
}
