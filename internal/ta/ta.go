package ta

import (
	"math"

	"don-futures/internal/types"
)

type Color int

const (
	Neutral Color = 0
	Green   Color = 1
	Red     Color = -1
)

// CandleColor is Green when close > open, Red when close < open.
func CandleColor(open, close float64) Color {
	switch {
	case close > open:
		return Green
	case close < open:
		return Red
	}
	return Neutral
}

// Range returns max(high) - min(low) across bars, or NaN for an empty slice.
func Range(bars []types.Bar) float64 {
	if len(bars) == 0 {
		return math.NaN()
	}
	hi, lo := bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	return hi - lo
}

// HeikinAshi converts a bar stream into Heikin-Ashi candles one bar at a time.
// The first candle's open is the raw open.
type HeikinAshi struct {
	prevOpen, prevClose float64
	seeded              bool
}

func (h *HeikinAshi) Next(b types.Bar) (open, close float64) {
	close = (b.Open + b.High + b.Low + b.Close) / 4
	if h.seeded {
		open = (h.prevOpen + h.prevClose) / 2
	} else {
		open = b.Open
		h.seeded = true
	}
	h.prevOpen, h.prevClose = open, close
	return open, close
}

func (h *HeikinAshi) Reset() {
	*h = HeikinAshi{}
}
