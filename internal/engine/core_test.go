package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"don-futures/internal/types"
)

// asyncGateway acknowledges orders and leaves fills to the test, the way a
// real broker reports them later on its event stream.
type asyncGateway struct {
	mu        sync.Mutex
	seq       int
	submitted []types.OrderRequest
	cancelled []string
}

func (g *asyncGateway) Submit(_ context.Context, req types.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.submitted = append(g.submitted, req)
	return fmt.Sprintf("async-%d", g.seq), nil
}

func (g *asyncGateway) Cancel(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
	return nil
}

func (g *asyncGateway) Events() <-chan types.OrderEvent { return nil }

func newTestCore(t *testing.T, gw *asyncGateway, det scripted) *core {
	t.Helper()
	c, err := newCore(testConfig(), &options{gateway: gw, detector: det, clock: time.Now})
	if err != nil {
		t.Fatalf("newCore: %v", err)
	}
	return c
}

func fill(id string, price float64, at time.Time) types.OrderEvent {
	return types.OrderEvent{OrderID: id, Kind: types.OrderFilled, Price: price, Time: at}
}

func TestAsyncFillOpensPositionOnNextStep(t *testing.T) {
	gw := &asyncGateway{}
	bars := minuteBars(morning,
		[4]float64{100, 100.25, 99.75, 100},
		[4]float64{100, 100.5, 99.5, 100.25},
		[4]float64{100.25, 100.5, 100, 100.25},
	)
	c := newTestCore(t, gw, longAt(bars))
	ctx := context.Background()

	if r := c.step(ctx, bars[0]); r.State != types.StatePendingEntry {
		t.Fatalf("state = %s", r.State)
	}
	if r := c.step(ctx, bars[1]); r.State != types.StatePendingEntry {
		t.Fatalf("no fill yet, state = %s", r.State)
	}
	c.enqueue(fill("async-1", 100.5, bars[1].Time.Add(30*time.Second)))
	c.enqueue(fill("async-1", 100.5, bars[1].Time.Add(30*time.Second)))
	if r := c.step(ctx, bars[2]); r.State != types.StateOpen {
		t.Fatalf("state = %s", r.State)
	}
	p := c.pm.position()
	if p.EntryPrice != 100.5 || p.StopPrice != 92.5 || p.TargetPrice != 112.5 {
		t.Fatalf("position = %+v", p)
	}
	if c.risk.trades != 1 {
		t.Fatalf("duplicate fill counted twice: trades = %d", c.risk.trades)
	}
}

func TestFillAfterGateClosesIsOffset(t *testing.T) {
	gw := &asyncGateway{}
	bars := minuteBars(time.Date(2025, 3, 4, 15, 54, 0, 0, newYork),
		[4]float64{100, 100.25, 99.75, 100},
		[4]float64{100, 100.5, 99.5, 100.25},
	)
	c := newTestCore(t, gw, longAt(bars))
	ctx := context.Background()

	c.step(ctx, bars[0])
	c.enqueue(fill("async-1", 100.25, bars[1].Time))
	if r := c.step(ctx, bars[1]); r.State != types.StateFlat {
		t.Fatalf("state = %s", r.State)
	}
	if len(gw.submitted) != 2 {
		t.Fatalf("orders = %+v", gw.submitted)
	}
	off := gw.submitted[1]
	if off.Intent != types.IntentExit || off.Direction != types.Short || off.Tag != "LATE_FILL_OFFSET" {
		t.Fatalf("offset order = %+v", off)
	}
	if c.agg.Len() != 0 {
		t.Fatalf("late fill must not produce a trade")
	}
}

func TestFillRacingCancelIsOffset(t *testing.T) {
	gw := &asyncGateway{}
	bars := minuteBars(time.Date(2025, 3, 4, 15, 54, 0, 0, newYork),
		[4]float64{100, 100.25, 99.75, 100},
		[4]float64{100, 100.5, 99.5, 100.25},
		[4]float64{100.25, 100.5, 100, 100.25},
	)
	c := newTestCore(t, gw, longAt(bars))
	ctx := context.Background()

	c.step(ctx, bars[0])
	c.step(ctx, bars[1])
	if len(gw.cancelled) != 1 || gw.cancelled[0] != "async-1" {
		t.Fatalf("cancels = %v", gw.cancelled)
	}
	c.enqueue(fill("async-1", 100, bars[1].Time))
	c.step(ctx, bars[2])
	if len(gw.submitted) != 2 || gw.submitted[1].Direction != types.Short {
		t.Fatalf("orders = %+v", gw.submitted)
	}
	if c.pm.current() != types.StateFlat {
		t.Fatalf("state = %s", c.pm.current())
	}
}

func TestUnknownOrderEventIgnored(t *testing.T) {
	gw := &asyncGateway{}
	bars := minuteBars(morning, [4]float64{100, 100.25, 99.75, 100})
	c := newTestCore(t, gw, scripted{})
	c.enqueue(fill("someone-else", 100, morning))
	if r := c.step(context.Background(), bars[0]); r.State != types.StateFlat {
		t.Fatalf("state = %s", r.State)
	}
}

func TestSessionTimerCancelsPendingEntry(t *testing.T) {
	gw := &asyncGateway{}
	bars := minuteBars(time.Date(2025, 3, 4, 15, 53, 0, 0, newYork), [4]float64{100, 100.25, 99.75, 100})
	c := newTestCore(t, gw, longAt(bars))
	ctx := context.Background()
	c.step(ctx, bars[0])

	if tr := c.onSessionTimer(ctx, time.Date(2025, 3, 4, 15, 54, 30, 0, newYork)); tr != nil || c.pm.current() != types.StatePendingEntry {
		t.Fatalf("timer before the boundary must not act")
	}
	c.onSessionTimer(ctx, time.Date(2025, 3, 4, 15, 55, 0, 0, newYork))
	if c.pm.current() != types.StateFlat || len(gw.cancelled) != 1 {
		t.Fatalf("state = %s cancels = %v", c.pm.current(), gw.cancelled)
	}
}

func TestRoundTripAccounting(t *testing.T) {
	tests := []struct {
		dir                 types.Direction
		entry, exit         float64
		size                int
		wantPts, wantDollar float64
		wantComm            float64
	}{
		{types.Long, 100, 112, 1, 12, 20, 4},
		{types.Short, 100, 108, 1, -8, -20, 4},
		{types.Long, 18000.25, 18003.75, 3, 3.5, 9, 12},
	}
	for _, tt := range tests {
		pts, dollars, comm := roundTrip(tt.dir, tt.entry, tt.exit, 2, tt.size, 4)
		if pts != tt.wantPts || dollars != tt.wantDollar || comm != tt.wantComm {
			t.Fatalf("roundTrip(%v %v->%v x%d) = %v, %v, %v", tt.dir, tt.entry, tt.exit, tt.size, pts, dollars, comm)
		}
	}
}

func TestPositionIDIsDeterministic(t *testing.T) {
	a := positionID("donchian_failed_test", types.Long, morning)
	b := positionID("donchian_failed_test", types.Long, morning.UTC())
	if a != b {
		t.Fatalf("ids differ across locations: %s %s", a, b)
	}
	if a == positionID("donchian_failed_test", types.Short, morning) {
		t.Fatalf("direction must be part of the id")
	}
}
