package ta

import (
	"math"
	"testing"

	"don-futures/internal/types"
)

func TestCandleColor(t *testing.T) {
	if CandleColor(100, 101) != Green || CandleColor(101, 100) != Red || CandleColor(100, 100) != Neutral {
		t.Fatalf("unexpected colours")
	}
}

func TestRange(t *testing.T) {
	bars := []types.Bar{
		{High: 101, Low: 99.5},
		{High: 102, Low: 100},
		{High: 102.5, Low: 100.5},
	}
	if got := Range(bars); got != 3 {
		t.Fatalf("Range = %v, want 3", got)
	}
	if !math.IsNaN(Range(nil)) {
		t.Fatalf("Range(nil) should be NaN")
	}
}

func TestHeikinAshi(t *testing.T) {
	var ha HeikinAshi
	o, c := ha.Next(types.Bar{Open: 10, High: 14, Low: 8, Close: 12})
	if o != 10 || c != 11 {
		t.Fatalf("first candle = %v/%v, want 10/11", o, c)
	}
	o, c = ha.Next(types.Bar{Open: 12, High: 16, Low: 12, Close: 16})
	if o != 10.5 || c != 14 {
		t.Fatalf("second candle = %v/%v, want 10.5/14", o, c)
	}
	ha.Reset()
	o, _ = ha.Next(types.Bar{Open: 50, High: 50, Low: 50, Close: 50})
	if o != 50 {
		t.Fatalf("after reset open = %v, want 50", o)
	}
}
