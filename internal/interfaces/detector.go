package interfaces

import "don-futures/internal/types"

// Detector evaluates a completed bar against the channel of the bars before
// it. Implementations never read bars they have not been given.
//
// Detect is only called on bars where the engine is flat and could act on a
// signal. Observe is called instead while an entry is pending or a position
// is open: rolling history may advance but no setup may be armed.
type Detector interface {
	Name() string
	Detect(bar types.Bar, ch types.ChannelState) types.Signal
	Observe(bar types.Bar, ch types.ChannelState)
	Reset()
}

// PriceAdjuster moves a theoretical exit price before P&L accounting.
type PriceAdjuster interface {
	AdjustExit(dir types.Direction, reason types.ExitReason, price float64) float64
}
