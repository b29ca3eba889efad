package engine

import (
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"don-futures/internal/types"
)

// positionNamespace scopes deterministic position IDs so a backtest and a
// live replay of the same bars agree on every trade ID.
var positionNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("don-futures/position"))

func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// validBar rejects non-finite or non-positive prices and inverted ranges.
// A zero-range bar (high == low) is valid.
func validBar(b types.Bar) bool {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if !finite(v) || v <= 0 {
			return false
		}
	}
	return b.High >= b.Low
}

func positionID(strategy string, dir types.Direction, entry time.Time) string {
	key := strategy + "|" + dir.String() + "|" + strconv.FormatInt(entry.UnixNano(), 10)
	return uuid.NewSHA1(positionNamespace, []byte(key)).String()
}

// roundTrip computes pnlDollars = pnlPoints * pointValue * size - commission,
// where commission is the round-trip rate per contract times size.
func roundTrip(dir types.Direction, entry, exit, pointValue float64, size int, commissionPerRT float64) (points, dollars, commission float64) {
	pts := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry)).Mul(decimal.NewFromInt(int64(dir)))
	qty := decimal.NewFromInt(int64(size))
	comm := decimal.NewFromFloat(commissionPerRT).Mul(qty)
	gross := pts.Mul(decimal.NewFromFloat(pointValue)).Mul(qty)
	return pts.InexactFloat64(), gross.Sub(comm).Round(2).InexactFloat64(), comm.Round(2).InexactFloat64()
}

// tickSlippage worsens market-style exits by a fixed number of ticks.
// Target exits rest as limit orders and are not adjusted.
type tickSlippage struct {
	ticks float64
	tick  float64
}

func newTickSlippage(ticks, tick float64) *tickSlippage {
	if ticks <= 0 || tick <= 0 {
		return nil
	}
	return &tickSlippage{ticks: ticks, tick: tick}
}

func (s *tickSlippage) AdjustExit(dir types.Direction, reason types.ExitReason, price float64) float64 {
	if reason == types.ExitTarget {
		return price
	}
	return price - float64(dir)*s.ticks*s.tick
}
