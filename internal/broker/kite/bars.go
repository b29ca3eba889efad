package kite

import (
	"context"
	"sync"
	"time"

	"don-futures/internal/interfaces"
	"don-futures/internal/logger"
	"don-futures/internal/types"
)

// closeGrace is how long after a bar's end a quiet market waits for a late
// tick before the bar is closed on the clock alone.
const closeGrace = 2 * time.Second

// BarBuilder aggregates ticks into fixed-interval bars. Bars are closed by
// the first tick of the next interval, or by the clock when no tick comes.
type BarBuilder struct {
	interval time.Duration
	now      func() time.Time
	out      chan types.Bar

	mu      sync.Mutex
	cur     *types.Bar
	last    time.Time // start of the last emitted bar
	cumVol  uint32
	haveVol bool
}

var _ interfaces.BarSource = (*BarBuilder)(nil)

func NewBarBuilder(interval time.Duration) *BarBuilder {
	if interval <= 0 {
		interval = time.Minute
	}
	return &BarBuilder{
		interval: interval,
		now:      time.Now,
		out:      make(chan types.Bar, 16),
	}
}

// AddTick folds one trade print into the current bar. cumVolume is the
// exchange's cumulative day volume.
func (bb *BarBuilder) AddTick(price float64, cumVolume uint32, at time.Time) {
	if price <= 0 || at.IsZero() {
		return
	}
	start := at.Truncate(bb.interval)

	bb.mu.Lock()
	var vol float64
	if bb.haveVol && cumVolume >= bb.cumVol {
		vol = float64(cumVolume - bb.cumVol)
	}
	bb.cumVol, bb.haveVol = cumVolume, true

	if !bb.last.IsZero() && !start.After(bb.last) {
		bb.mu.Unlock()
		logger.Debug(context.Background(), "Dropping tick for a closed bar", "at", at, "price", price)
		return
	}

	var done *types.Bar
	switch {
	case bb.cur == nil:
		bb.cur = &types.Bar{Time: start, Open: price, High: price, Low: price, Close: price, Volume: vol}
	case start.After(bb.cur.Time):
		done = bb.cur
		bb.last = done.Time
		bb.cur = &types.Bar{Time: start, Open: price, High: price, Low: price, Close: price, Volume: vol}
	default:
		if price > bb.cur.High {
			bb.cur.High = price
		}
		if price < bb.cur.Low {
			bb.cur.Low = price
		}
		bb.cur.Close = price
		bb.cur.Volume += vol
	}
	bb.mu.Unlock()

	if done != nil {
		bb.out <- *done
	}
}

// closeDue takes the current bar if its interval plus grace has passed.
func (bb *BarBuilder) closeDue(now time.Time) (types.Bar, bool) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if bb.cur == nil || now.Before(bb.cur.Time.Add(bb.interval+closeGrace)) {
		return types.Bar{}, false
	}
	b := *bb.cur
	bb.last = b.Time
	bb.cur = nil
	return b, true
}

// deadline is when the current bar closes on the clock, or zero when no bar
// is forming.
func (bb *BarBuilder) deadline() time.Time {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if bb.cur == nil {
		return time.Time{}
	}
	return bb.cur.Time.Add(bb.interval + closeGrace)
}

func (bb *BarBuilder) Next(ctx context.Context) (types.Bar, error) {
	for {
		select {
		case b := <-bb.out:
			return b, nil
		default:
		}

		wait := bb.interval
		if d := bb.deadline(); !d.IsZero() {
			wait = d.Sub(bb.now())
		}
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case b := <-bb.out:
			timer.Stop()
			return b, nil
		case <-ctx.Done():
			timer.Stop()
			return types.Bar{}, ctx.Err()
		case <-timer.C:
			if b, ok := bb.closeDue(bb.now()); ok {
				return b, nil
			}
		}
	}
}
