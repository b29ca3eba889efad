package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"don-futures/internal/types"
)

func TestObserveBarOutcomes(t *testing.T) {
	ObserveBar("MNQ", types.StepResult{Accepted: true, Valid: true, State: types.StateOpen})
	ObserveBar("MNQ", types.StepResult{Accepted: false})
	ObserveBar("MNQ", types.StepResult{Accepted: true, Valid: false})

	for _, outcome := range []string{"accepted", "rejected", "invalid"} {
		if got := testutil.ToFloat64(BarsTotal.WithLabelValues("MNQ", outcome)); got < 1 {
			t.Fatalf("bars_total{%s} = %v", outcome, got)
		}
	}
	if got := testutil.ToFloat64(PositionState.WithLabelValues("MNQ")); got != 0 {
		t.Fatalf("position state after invalid flat bar = %v, want 0", got)
	}
}

func TestObserveTrade(t *testing.T) {
	ObserveTrade("MES", types.Trade{ExitReason: types.ExitTarget}, 20)
	if got := testutil.ToFloat64(NetPnL.WithLabelValues("MES")); got != 20 {
		t.Fatalf("net pnl gauge = %v", got)
	}

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "futures_trades_total" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("futures_trades_total metric not found")
	}
}
