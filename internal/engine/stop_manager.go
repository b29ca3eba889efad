package engine

import (
	"don-futures/internal/store"
	"don-futures/internal/types"
)

// stopManager owns the exit price levels of a position: initial stop and
// target, touch checks, and the trailing rule.
type stopManager struct {
	stopPts         float64
	targetPts       float64
	trailActivation float64
	trailDistance   float64
	tick            float64
	stopFirst       bool
}

func newStopManager(exits store.ExitConfig, tick float64) *stopManager {
	return &stopManager{
		stopPts:         exits.StopPts,
		targetPts:       exits.TargetPts,
		trailActivation: exits.TrailActivationPts,
		trailDistance:   exits.TrailDistancePts,
		tick:            tick,
		stopFirst:       exits.FirstTouch != "TARGET_FIRST",
	}
}

// initialLevels returns stop and target for a fill at entry.
func (sm *stopManager) initialLevels(dir types.Direction, entry float64) (stop, target float64) {
	d := float64(dir)
	return roundToTick(entry-d*sm.stopPts, sm.tick), roundToTick(entry+d*sm.targetPts, sm.tick)
}

func (sm *stopManager) stopHit(p *types.Position, b types.Bar) bool {
	if p.Direction == types.Long {
		return b.Low <= p.StopPrice
	}
	return b.High >= p.StopPrice
}

func (sm *stopManager) targetHit(p *types.Position, b types.Bar) bool {
	if p.Direction == types.Long {
		return b.High >= p.TargetPrice
	}
	return b.Low <= p.TargetPrice
}

// trail records the bar's favourable excursion and, once it reaches the
// activation distance, pulls the stop to within trailDistance of the bar's
// extreme. The stop never moves against the position.
func (sm *stopManager) trail(p *types.Position, b types.Bar) bool {
	fav := b.High
	if p.Direction == types.Short {
		fav = b.Low
	}
	d := float64(p.Direction)
	excursion := d * (fav - p.EntryPrice)
	if excursion > p.MaxFavorableExcursion {
		p.MaxFavorableExcursion = excursion
	}

	if sm.trailDistance <= 0 || excursion < sm.trailActivation {
		return false
	}
	p.TrailActive = true
	candidate := roundToTick(fav-d*sm.trailDistance, sm.tick)
	if d*(candidate-p.StopPrice) <= 0 {
		return false
	}
	p.StopPrice = candidate
	p.StopTrailed = true
	return true
}
