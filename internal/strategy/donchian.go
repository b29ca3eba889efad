package strategy

import (
	"don-futures/internal/types"
)

// DonchianOption enables an entry type beside the failed-test fade.
type DonchianOption func(*DonchianFailedTest)

// WithBounce enters against a bar that touches a channel edge, within the
// break tolerance, and closes back inside by more than the tolerance.
func WithBounce() DonchianOption {
	return func(d *DonchianFailedTest) { d.bounce = true }
}

// WithBreakout goes with a close more than minPts beyond a channel edge.
func WithBreakout(minPts float64) DonchianOption {
	return func(d *DonchianFailedTest) {
		d.breakout = true
		d.breakoutMin = minPts
	}
}

// DonchianFailedTest fades a channel break that is reclaimed on the very next
// bar. A break left unreclaimed for one bar is discarded.
type DonchianFailedTest struct {
	tolerance   float64
	bounce      bool
	breakout    bool
	breakoutMin float64

	upPending   bool
	downPending bool
	brokenUpper float64
	brokenLower float64
}

func NewDonchianFailedTest(tolerance float64, opts ...DonchianOption) *DonchianFailedTest {
	d := &DonchianFailedTest{tolerance: tolerance}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DonchianFailedTest) Name() string { return "donchian_failed_test" }

func (d *DonchianFailedTest) Detect(bar types.Bar, ch types.ChannelState) types.Signal {
	if !ch.Ready {
		d.Reset()
		return types.Signal{}
	}

	hadPending := d.upPending || d.downPending
	if hadPending {
		up, down := d.upPending, d.downPending
		upper, lower := d.brokenUpper, d.brokenLower
		d.Reset()
		// Reclaim is measured against the level that was broken; the current
		// channel already contains the breaking bar.
		switch {
		case up && bar.Close <= upper:
			return signal(types.SignalShort, bar, types.ReasonFailedTestFade)
		case down && bar.Close >= lower:
			return signal(types.SignalLong, bar, types.ReasonFailedTestFade)
		}
	}

	if sig := d.detectBounce(bar, ch); !sig.IsNone() {
		return sig
	}
	if sig := d.detectBreakout(bar, ch); !sig.IsNone() {
		return sig
	}

	// The bar after a break only resolves it.
	if hadPending {
		return types.Signal{}
	}
	if bar.High > ch.Upper+d.tolerance {
		d.upPending = true
		d.brokenUpper = ch.Upper
	}
	if bar.Low < ch.Lower-d.tolerance {
		d.downPending = true
		d.brokenLower = ch.Lower
	}
	return types.Signal{}
}

func (d *DonchianFailedTest) detectBounce(bar types.Bar, ch types.ChannelState) types.Signal {
	if !d.bounce {
		return types.Signal{}
	}
	tol := d.tolerance
	if bar.High >= ch.Upper-tol && bar.High <= ch.Upper+tol && bar.Close < ch.Upper-tol {
		return signal(types.SignalShort, bar, types.ReasonBounceReject)
	}
	if bar.Low >= ch.Lower-tol && bar.Low <= ch.Lower+tol && bar.Close > ch.Lower+tol {
		return signal(types.SignalLong, bar, types.ReasonBounceReject)
	}
	return types.Signal{}
}

func (d *DonchianFailedTest) detectBreakout(bar types.Bar, ch types.ChannelState) types.Signal {
	if !d.breakout {
		return types.Signal{}
	}
	switch {
	case bar.Close > ch.Upper+d.breakoutMin:
		return signal(types.SignalLong, bar, types.ReasonBreakout)
	case bar.Close < ch.Lower-d.breakoutMin:
		return signal(types.SignalShort, bar, types.ReasonBreakout)
	}
	return types.Signal{}
}

// Observe drops any pending break. Breaks are only armed on bars the engine
// could have acted on.
func (d *DonchianFailedTest) Observe(types.Bar, types.ChannelState) {
	d.Reset()
}

func (d *DonchianFailedTest) Reset() {
	d.upPending, d.downPending = false, false
	d.brokenUpper, d.brokenLower = 0, 0
}

func signal(kind types.SignalKind, bar types.Bar, reason types.SignalReason) types.Signal {
	return types.Signal{Kind: kind, Origin: bar, Reason: reason}
}
