package strategy

import (
	"don-futures/internal/ta"
	"don-futures/internal/types"
)

const threeBarLookback = 3

// ThreeBarScalp goes with three consecutive same-colour bars whose combined
// range is at least minRange points.
type ThreeBarScalp struct {
	minRange float64
	heikin   bool

	ha     ta.HeikinAshi
	bars   [threeBarLookback]types.Bar
	colors [threeBarLookback]ta.Color
	n      int
}

func NewThreeBarScalp(minRange float64, heikinAshi bool) *ThreeBarScalp {
	return &ThreeBarScalp{minRange: minRange, heikin: heikinAshi}
}

func (s *ThreeBarScalp) Name() string {
	if s.heikin {
		return "three_bar_scalp_ha"
	}
	return "three_bar_scalp"
}

// Detect ignores the channel; the lookback is the last three bars seen,
// the signal bar included.
func (s *ThreeBarScalp) Detect(bar types.Bar, _ types.ChannelState) types.Signal {
	color := ta.CandleColor(bar.Open, bar.Close)
	if s.heikin {
		color = ta.CandleColor(s.ha.Next(bar))
	}

	copy(s.bars[:], s.bars[1:])
	copy(s.colors[:], s.colors[1:])
	s.bars[threeBarLookback-1] = bar
	s.colors[threeBarLookback-1] = color
	if s.n < threeBarLookback {
		s.n++
		if s.n < threeBarLookback {
			return types.Signal{}
		}
	}

	first := s.colors[0]
	if first == ta.Neutral {
		return types.Signal{}
	}
	for _, c := range s.colors[1:] {
		if c != first {
			return types.Signal{}
		}
	}
	if ta.Range(s.bars[:]) < s.minRange {
		return types.Signal{}
	}

	kind := types.SignalLong
	if first == ta.Red {
		kind = types.SignalShort
	}
	return types.Signal{Kind: kind, Origin: bar, Reason: types.ReasonThreeBarMomentum}
}

// Observe keeps the three-bar window rolling while the engine is in a trade.
func (s *ThreeBarScalp) Observe(bar types.Bar, ch types.ChannelState) {
	s.Detect(bar, ch)
}

func (s *ThreeBarScalp) Reset() {
	s.ha.Reset()
	s.n = 0
	s.bars = [threeBarLookback]types.Bar{}
	s.colors = [threeBarLookback]ta.Color{}
}
