package results

import (
	"testing"

	"don-futures/internal/types"
)

func trade(reason types.ExitReason, points, dollars, commission float64) types.Trade {
	return types.Trade{ExitReason: reason, PnLPoints: points, PnLDollars: dollars, Commission: commission}
}

func TestSummary(t *testing.T) {
	a := New()
	a.Add(trade(types.ExitTarget, 12, 20, 4))
	a.Add(trade(types.ExitStop, -8, -20, 4))
	a.Add(trade(types.ExitTarget, 12, 20, 4))
	a.Add(trade(types.ExitTime, 1, -2, 4))

	s := a.Summary()
	if s.Trades != 4 || s.Wins != 2 || s.Losses != 2 {
		t.Fatalf("counts = %d/%d/%d", s.Trades, s.Wins, s.Losses)
	}
	if s.WinRate != 0.5 {
		t.Fatalf("win rate = %v, want 0.5", s.WinRate)
	}
	if s.GrossPoints != 17 || s.NetDollars != 18 || s.Commission != 16 || s.GrossDollars != 34 {
		t.Fatalf("totals = %+v", s)
	}
	if s.AvgWin != 20 || s.AvgLoss != -11 {
		t.Fatalf("averages = %v/%v", s.AvgWin, s.AvgLoss)
	}
	if s.ProfitFactor != 1.82 {
		t.Fatalf("profit factor = %v, want 1.82", s.ProfitFactor)
	}
	if s.MaxDrawdown != 20 {
		t.Fatalf("max drawdown = %v, want 20", s.MaxDrawdown)
	}
	target := s.ByExit[types.ExitTarget]
	if target.Count != 2 || target.PnLPoints != 24 || target.NetDollars != 40 {
		t.Fatalf("target stats = %+v", target)
	}
	if _, ok := s.ByExit[types.ExitSessionFlatten]; ok {
		t.Fatalf("unused exit reason should be absent")
	}
}

func TestZeroPnLCountsAsLoss(t *testing.T) {
	a := New()
	a.Add(trade(types.ExitTime, 0, 0, 0))
	if s := a.Summary(); s.Wins != 0 || s.Losses != 1 {
		t.Fatalf("breakeven trade counted as win: %+v", s)
	}
}

func TestEmptySummary(t *testing.T) {
	s := New().Summary()
	if s.Trades != 0 || s.WinRate != 0 || s.ProfitFactor != 0 {
		t.Fatalf("empty summary = %+v", s)
	}
}

func TestTradesAndLastReturnCopies(t *testing.T) {
	a := New()
	for i := 0; i < 5; i++ {
		a.Add(trade(types.ExitTarget, float64(i), float64(i), 0))
	}
	last := a.Last(2)
	if len(last) != 2 || last[1].PnLPoints != 4 {
		t.Fatalf("Last(2) = %+v", last)
	}
	all := a.Trades()
	all[0].PnLPoints = 99
	if a.Trades()[0].PnLPoints == 99 {
		t.Fatalf("Trades must return a copy")
	}
	if len(a.Last(10)) != 5 {
		t.Fatalf("Last beyond length should clamp")
	}
}
