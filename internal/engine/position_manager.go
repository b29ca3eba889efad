package engine

import (
	"time"

	"don-futures/internal/interfaces"
	"don-futures/internal/store"
	"don-futures/internal/types"
)

// pendingEntry is an entry order submitted but not yet filled.
type pendingEntry struct {
	orderID     string
	signal      types.Signal
	submittedAt time.Time
}

// positionManager is the Flat -> PendingEntry -> Open -> Flat state machine
// for the single position of a run.
type positionManager struct {
	state   types.PositionState
	pending *pendingEntry
	pos     *types.Position

	stops    *stopManager
	adjuster interfaces.PriceAdjuster

	strategy      string
	symbol        string
	size          int
	pointValue    float64
	commission    float64
	maxHoldBars   int
	flattenAtOpen bool

	// lastFilled is the order ID of the fill that opened the current or most
	// recent position. A repeated fill event for it is ignored.
	lastFilled string
}

func newPositionManager(cfg *store.Config, strategy string, adjuster interfaces.PriceAdjuster) *positionManager {
	return &positionManager{
		state:         types.StateFlat,
		stops:         newStopManager(cfg.Exits, cfg.Instrument.TickSize),
		adjuster:      adjuster,
		strategy:      strategy,
		symbol:        cfg.Instrument.Symbol,
		size:          cfg.Instrument.ContractSize,
		pointValue:    cfg.Instrument.PointValue,
		commission:    cfg.Costs.CommissionPerRoundTrip,
		maxHoldBars:   cfg.Exits.MaxHoldBars,
		flattenAtOpen: cfg.Exits.FlattenPrice == "OPEN",
	}
}

func (pm *positionManager) current() types.PositionState { return pm.state }

// position returns a copy of the open position, or nil.
func (pm *positionManager) position() *types.Position {
	if pm.pos == nil {
		return nil
	}
	p := *pm.pos
	return &p
}

func (pm *positionManager) pendingOrder() string {
	if pm.pending == nil {
		return ""
	}
	return pm.pending.orderID
}

func (pm *positionManager) pendingDirection() types.Direction {
	if pm.pending == nil {
		return 0
	}
	return pm.pending.signal.Kind.Direction()
}

// beginEntry moves Flat -> PendingEntry.
func (pm *positionManager) beginEntry(orderID string, sig types.Signal, at time.Time) bool {
	if pm.state != types.StateFlat {
		return false
	}
	pm.pending = &pendingEntry{orderID: orderID, signal: sig, submittedAt: at}
	pm.state = types.StatePendingEntry
	return true
}

// cancelEntry moves PendingEntry -> Flat on rejection, cancel or session end.
func (pm *positionManager) cancelEntry() {
	if pm.state != types.StatePendingEntry {
		return
	}
	pm.pending = nil
	pm.state = types.StateFlat
}

// fill moves PendingEntry -> Open at the fill price.
func (pm *positionManager) fill(ev types.OrderEvent) bool {
	if pm.state != types.StatePendingEntry || pm.pending.orderID != ev.OrderID {
		return false
	}
	dir := pm.pending.signal.Kind.Direction()
	entry := roundToTick(ev.Price, pm.stops.tick)
	stop, target := pm.stops.initialLevels(dir, entry)
	pm.pos = &types.Position{
		ID:            positionID(pm.strategy, dir, ev.Time),
		Direction:     dir,
		EntryReason:   pm.pending.signal.Reason,
		EntryPrice:    entry,
		EntryTime:     ev.Time,
		Size:          pm.size,
		StopPrice:     stop,
		TargetPrice:   target,
		TrailDistance: pm.stops.trailDistance,
	}
	pm.lastFilled = ev.OrderID
	pm.pending = nil
	pm.state = types.StateOpen
	return true
}

// evaluate runs the per-bar exit rules in fixed priority: session flatten,
// stop or target (configurable order), trailing update, then time exit.
func (pm *positionManager) evaluate(b types.Bar, flatten bool) *types.Trade {
	if pm.state != types.StateOpen {
		return nil
	}
	p := pm.pos

	if flatten {
		price := b.Close
		if pm.flattenAtOpen {
			price = b.Open
		}
		return pm.close(price, b.Time, types.ExitSessionFlatten)
	}

	stopCheck := func() *types.Trade {
		if !pm.stops.stopHit(p, b) {
			return nil
		}
		reason := types.ExitStop
		if p.StopTrailed {
			reason = types.ExitTrailStop
		}
		return pm.close(p.StopPrice, b.Time, reason)
	}
	targetCheck := func() *types.Trade {
		if !pm.stops.targetHit(p, b) {
			return nil
		}
		return pm.close(p.TargetPrice, b.Time, types.ExitTarget)
	}

	first, second := stopCheck, targetCheck
	if !pm.stops.stopFirst {
		first, second = targetCheck, stopCheck
	}
	if t := first(); t != nil {
		return t
	}
	if t := second(); t != nil {
		return t
	}

	pm.stops.trail(p, b)

	p.BarsHeld++
	if pm.maxHoldBars > 0 && p.BarsHeld >= pm.maxHoldBars {
		return pm.close(b.Close, b.Time, types.ExitTime)
	}
	return nil
}

// advance handles a bar that failed validation: only the clocks move.
// Any exit it triggers is priced at the last valid close.
func (pm *positionManager) advance(at time.Time, lastClose float64, flatten bool) *types.Trade {
	if pm.state != types.StateOpen {
		return nil
	}
	if flatten {
		return pm.close(lastClose, at, types.ExitSessionFlatten)
	}
	pm.pos.BarsHeld++
	if pm.maxHoldBars > 0 && pm.pos.BarsHeld >= pm.maxHoldBars {
		return pm.close(lastClose, at, types.ExitTime)
	}
	return nil
}

// forceFlatten closes the open position outside of bar processing, used by
// the live session timer.
func (pm *positionManager) forceFlatten(price float64, at time.Time) *types.Trade {
	if pm.state != types.StateOpen {
		return nil
	}
	return pm.close(price, at, types.ExitSessionFlatten)
}

func (pm *positionManager) close(price float64, at time.Time, reason types.ExitReason) *types.Trade {
	p := pm.pos
	exit := price
	if pm.adjuster != nil {
		exit = pm.adjuster.AdjustExit(p.Direction, reason, exit)
	}
	points, dollars, commission := roundTrip(p.Direction, p.EntryPrice, exit, pm.pointValue, p.Size, pm.commission)

	mfe := p.MaxFavorableExcursion
	if points > mfe {
		mfe = points
	}

	t := &types.Trade{
		ID:                    p.ID,
		Symbol:                pm.symbol,
		Direction:             p.Direction,
		EntryReason:           p.EntryReason,
		EntryPrice:            p.EntryPrice,
		EntryTime:             p.EntryTime,
		ExitPrice:             exit,
		ExitTime:              at,
		ExitReason:            reason,
		Size:                  p.Size,
		BarsHeld:              p.BarsHeld,
		MaxFavorableExcursion: mfe,
		PnLPoints:             points,
		PnLDollars:            dollars,
		Commission:            commission,
	}
	pm.pos = nil
	pm.state = types.StateFlat
	return t
}
