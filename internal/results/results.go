// Package results accumulates closed trades into run statistics.
package results

import (
	"github.com/shopspring/decimal"

	"don-futures/internal/types"
)

type exitAcc struct {
	count  int
	points decimal.Decimal
	net    decimal.Decimal
}

// Aggregator is append-only and owned by a single run.
type Aggregator struct {
	trades []types.Trade

	wins, losses int
	points       decimal.Decimal
	gross        decimal.Decimal
	commission   decimal.Decimal
	net          decimal.Decimal
	winSum       decimal.Decimal
	lossSum      decimal.Decimal

	peak        decimal.Decimal
	maxDrawdown decimal.Decimal

	byExit map[types.ExitReason]*exitAcc
}

func New() *Aggregator {
	return &Aggregator{byExit: make(map[types.ExitReason]*exitAcc)}
}

func (a *Aggregator) Add(t types.Trade) {
	a.trades = append(a.trades, t)

	pts := decimal.NewFromFloat(t.PnLPoints)
	net := decimal.NewFromFloat(t.PnLDollars)
	comm := decimal.NewFromFloat(t.Commission)

	a.points = a.points.Add(pts)
	a.net = a.net.Add(net)
	a.commission = a.commission.Add(comm)
	a.gross = a.gross.Add(net.Add(comm))

	if t.PnLDollars > 0 {
		a.wins++
		a.winSum = a.winSum.Add(net)
	} else {
		a.losses++
		a.lossSum = a.lossSum.Add(net)
	}

	if a.net.GreaterThan(a.peak) {
		a.peak = a.net
	}
	if dd := a.peak.Sub(a.net); dd.GreaterThan(a.maxDrawdown) {
		a.maxDrawdown = dd
	}

	e := a.byExit[t.ExitReason]
	if e == nil {
		e = &exitAcc{}
		a.byExit[t.ExitReason] = e
	}
	e.count++
	e.points = e.points.Add(pts)
	e.net = e.net.Add(net)
}

func (a *Aggregator) Len() int { return len(a.trades) }

// Trades returns a copy of the trade ledger in close order.
func (a *Aggregator) Trades() []types.Trade {
	out := make([]types.Trade, len(a.trades))
	copy(out, a.trades)
	return out
}

// Last returns up to n most recent trades.
func (a *Aggregator) Last(n int) []types.Trade {
	if n > len(a.trades) {
		n = len(a.trades)
	}
	out := make([]types.Trade, n)
	copy(out, a.trades[len(a.trades)-n:])
	return out
}

func (a *Aggregator) Summary() types.Summary {
	s := types.Summary{
		Trades:       len(a.trades),
		Wins:         a.wins,
		Losses:       a.losses,
		GrossPoints:  a.points.InexactFloat64(),
		GrossDollars: a.gross.Round(2).InexactFloat64(),
		Commission:   a.commission.Round(2).InexactFloat64(),
		NetDollars:   a.net.Round(2).InexactFloat64(),
		MaxDrawdown:  a.maxDrawdown.Round(2).InexactFloat64(),
		ByExit:       make(map[types.ExitReason]types.ExitStats, len(a.byExit)),
	}
	if s.Trades > 0 {
		s.WinRate = decimal.NewFromInt(int64(a.wins)).
			Div(decimal.NewFromInt(int64(s.Trades))).
			Round(4).InexactFloat64()
	}
	if a.wins > 0 {
		s.AvgWin = a.winSum.Div(decimal.NewFromInt(int64(a.wins))).Round(2).InexactFloat64()
	}
	if a.losses > 0 {
		s.AvgLoss = a.lossSum.Div(decimal.NewFromInt(int64(a.losses))).Round(2).InexactFloat64()
	}
	if a.lossSum.IsNegative() {
		s.ProfitFactor = a.winSum.Div(a.lossSum.Neg()).Round(2).InexactFloat64()
	}
	for reason, e := range a.byExit {
		s.ByExit[reason] = types.ExitStats{
			Count:      e.count,
			PnLPoints:  e.points.InexactFloat64(),
			NetDollars: e.net.Round(2).InexactFloat64(),
		}
	}
	return s
}
