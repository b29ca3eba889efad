package strategy

import (
	"fmt"
	"strings"

	"don-futures/internal/interfaces"
	"don-futures/internal/store"
)

// Build returns the detector matching the configured variant. The choice is
// made once per run; the engine only sees interfaces.Detector.
func Build(cfg store.StrategyConfig) (interfaces.Detector, error) {
	heikin := strings.EqualFold(cfg.CandleMode, "HEIKIN_ASHI")
	switch strings.ToUpper(strings.TrimSpace(cfg.Variant)) {
	case "", "DONCHIAN_FAILED_TEST", "DONCHIAN":
		var opts []DonchianOption
		if cfg.EnableBounce {
			opts = append(opts, WithBounce())
		}
		if cfg.EnableBreakout {
			opts = append(opts, WithBreakout(cfg.BreakoutMinPts))
		}
		return NewDonchianFailedTest(cfg.BreakTolerancePts, opts...), nil
	case "THREE_BAR_SCALP", "THREE_BAR":
		return NewThreeBarScalp(cfg.MinThreeBarRangePts, heikin), nil
	default:
		return nil, fmt.Errorf("unknown strategy variant %q", cfg.Variant)
	}
}
