package engine

import (
	"context"

	"don-futures/internal/logger"
	"don-futures/internal/store"
	"don-futures/internal/types"
)

// riskManager enforces per-trading-day entry limits. It never closes
// positions; it only blocks new entries.
type riskManager struct {
	dailyLossLimit  float64
	maxTrades       int
	maxConsecLosses int

	day          string
	dayPnL       float64
	trades       int
	consecLosses int
}

func newRiskManager(cfg store.RiskConfig) *riskManager {
	return &riskManager{
		dailyLossLimit:  cfg.DailyLossLimit,
		maxTrades:       cfg.MaxTradesPerDay,
		maxConsecLosses: cfg.MaxConsecutiveLosses,
	}
}

func (rm *riskManager) roll(day string) {
	if day == rm.day {
		return
	}
	rm.day = day
	rm.dayPnL = 0
	rm.trades = 0
	rm.consecLosses = 0
}

// allowEntry reports whether a new position may be opened on day.
func (rm *riskManager) allowEntry(ctx context.Context, symbol, day string) bool {
	rm.roll(day)

	switch {
	case rm.dailyLossLimit > 0 && rm.dayPnL <= -rm.dailyLossLimit:
		logger.Risk(ctx, symbol, "DAILY_LOSS_LIMIT", "daily loss limit reached",
			"day", day, "day_pnl", rm.dayPnL, "limit", rm.dailyLossLimit)
		return false
	case rm.maxTrades > 0 && rm.trades >= rm.maxTrades:
		logger.Risk(ctx, symbol, "MAX_TRADES_PER_DAY", "daily trade count reached",
			"day", day, "trades", rm.trades, "limit", rm.maxTrades)
		return false
	case rm.maxConsecLosses > 0 && rm.consecLosses >= rm.maxConsecLosses:
		logger.Risk(ctx, symbol, "MAX_CONSECUTIVE_LOSSES", "consecutive loss limit reached",
			"day", day, "losses", rm.consecLosses, "limit", rm.maxConsecLosses)
		return false
	}
	return true
}

// onEntry counts a filled entry against day.
func (rm *riskManager) onEntry(day string) {
	rm.roll(day)
	rm.trades++
}

// onClose books a closed trade's P&L against day.
func (rm *riskManager) onClose(day string, t *types.Trade) {
	rm.roll(day)
	rm.dayPnL += t.PnLDollars
	if t.PnLDollars > 0 {
		rm.consecLosses = 0
	} else {
		rm.consecLosses++
	}
}
