// Package channel maintains a rolling Donchian channel with O(1) amortised
// updates.
package channel

import "don-futures/internal/types"

type entry struct {
	idx int64
	v   float64
}

// deque keeps indices with monotonic values; the front is the window extreme.
type deque struct {
	buf  []entry
	head int
}

func (d *deque) len() int { return len(d.buf) - d.head }

func (d *deque) front() entry { return d.buf[d.head] }

// push drops every back entry that can never be the extreme again.
// keep reports whether an existing value survives next to the new one.
func (d *deque) push(e entry, keep func(old, cur float64) bool) {
	for d.len() > 0 && !keep(d.buf[len(d.buf)-1].v, e.v) {
		d.buf = d.buf[:len(d.buf)-1]
	}
	d.buf = append(d.buf, e)
}

func (d *deque) evictBefore(idx int64) {
	for d.len() > 0 && d.buf[d.head].idx < idx {
		d.head++
	}
	if d.head > 64 && d.head*2 > len(d.buf) {
		n := copy(d.buf, d.buf[d.head:])
		d.buf = d.buf[:n]
		d.head = 0
	}
}

func (d *deque) reset() {
	d.buf = d.buf[:0]
	d.head = 0
}

// Tracker reports, for each bar, the highest high and lowest low of the
// Period bars before it. The bar being evaluated is never part of its own
// channel. With a lag of L the window also skips the L bars just before it.
type Tracker struct {
	period int
	lag    int
	seen   int64
	held   []types.Bar
	highs  deque
	lows   deque
}

func New(period int) *Tracker {
	return NewLagged(period, 0)
}

func NewLagged(period, lag int) *Tracker {
	if period < 1 {
		period = 1
	}
	if lag < 0 {
		lag = 0
	}
	return &Tracker{
		period: period,
		lag:    lag,
		held:   make([]types.Bar, 0, lag+1),
		highs:  deque{buf: make([]entry, 0, period+1)},
		lows:   deque{buf: make([]entry, 0, period+1)},
	}
}

func (t *Tracker) Period() int { return t.period }

func (t *Tracker) Lag() int { return t.lag }

// Update returns the channel over the bars preceding b, then admits b.
func (t *Tracker) Update(b types.Bar) types.ChannelState {
	st := t.State()

	t.held = append(t.held, b)
	if len(t.held) > t.lag {
		t.admit(t.held[0])
		n := copy(t.held, t.held[1:])
		t.held = t.held[:n]
	}
	return st
}

func (t *Tracker) admit(b types.Bar) {
	idx := t.seen
	t.highs.push(entry{idx, b.High}, func(old, cur float64) bool { return old > cur })
	t.lows.push(entry{idx, b.Low}, func(old, cur float64) bool { return old < cur })
	t.seen++

	start := t.seen - int64(t.period)
	t.highs.evictBefore(start)
	t.lows.evictBefore(start)
}

// State is the channel the next bar will be measured against.
func (t *Tracker) State() types.ChannelState {
	if t.seen < int64(t.period) {
		return types.ChannelState{Period: t.period}
	}
	return types.ChannelState{
		Period: t.period,
		Upper:  t.highs.front().v,
		Lower:  t.lows.front().v,
		Ready:  true,
	}
}

func (t *Tracker) Reset() {
	t.seen = 0
	t.held = t.held[:0]
	t.highs.reset()
	t.lows.reset()
}
