package kite

import (
	"context"
	"errors"
	"testing"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"don-futures/internal/store"
	"don-futures/internal/types"
)

type fakeAPI struct {
	placed    []kiteconnect.OrderParams
	cancelled []string
	nextID    string
	err       error
	onPlace   func(id string)
}

func (f *fakeAPI) PlaceOrder(variety string, p kiteconnect.OrderParams) (kiteconnect.OrderResponse, error) {
	if f.err != nil {
		return kiteconnect.OrderResponse{}, f.err
	}
	f.placed = append(f.placed, p)
	if f.onPlace != nil {
		f.onPlace(f.nextID)
	}
	return kiteconnect.OrderResponse{OrderID: f.nextID}, nil
}

func (f *fakeAPI) CancelOrder(variety, orderID string, parent *string) (kiteconnect.OrderResponse, error) {
	f.cancelled = append(f.cancelled, orderID)
	return kiteconnect.OrderResponse{OrderID: orderID}, nil
}

var kiteCfg = store.KiteConfig{Exchange: "NFO", Tradingsymbol: "NIFTY25MARFUT", Product: "NRML"}

func TestSubmitBuildsMarketOrder(t *testing.T) {
	api := &fakeAPI{nextID: "250304000001"}
	g := newGateway(api, kiteCfg)

	id, err := g.Submit(context.Background(), types.OrderRequest{
		Intent: types.IntentEntry, Direction: types.Short, Size: 75, Tag: "FAILED_TEST_FADE",
	})
	if err != nil || id != "250304000001" {
		t.Fatalf("Submit = %q, %v", id, err)
	}
	p := api.placed[0]
	if p.TransactionType != kiteconnect.TransactionTypeSell || p.OrderType != kiteconnect.OrderTypeMarket {
		t.Fatalf("order params = %+v", p)
	}
	if p.Quantity != 75 || p.Tradingsymbol != "NIFTY25MARFUT" || p.Exchange != "NFO" {
		t.Fatalf("order params = %+v", p)
	}
	if p.Tag != "FAILEDTESTFADE" {
		t.Fatalf("tag = %q", p.Tag)
	}
}

func TestSubmitWrapsBrokerError(t *testing.T) {
	api := &fakeAPI{err: errors.New("insufficient margin")}
	g := newGateway(api, kiteCfg)
	if _, err := g.Submit(context.Background(), types.OrderRequest{Intent: types.IntentEntry, Direction: types.Long, Size: 1}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOrderUpdatesBecomeEvents(t *testing.T) {
	api := &fakeAPI{nextID: "A1"}
	g := newGateway(api, kiteCfg)
	if _, err := g.Submit(context.Background(), types.OrderRequest{Intent: types.IntentEntry, Direction: types.Long, Size: 1}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	g.OnOrderUpdate(kiteconnect.Order{OrderID: "A1", Status: "OPEN"})
	g.OnOrderUpdate(kiteconnect.Order{OrderID: "ZZ", Status: "COMPLETE", AveragePrice: 1})
	g.OnOrderUpdate(kiteconnect.Order{OrderID: "A1", Status: "COMPLETE", AveragePrice: 22150.5})
	g.OnOrderUpdate(kiteconnect.Order{OrderID: "A1", Status: "COMPLETE", AveragePrice: 22150.5})

	if n := len(g.Events()); n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
	ev := <-g.Events()
	if ev.OrderID != "A1" || ev.Kind != types.OrderFilled || ev.Price != 22150.5 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestRejectionAndExitUpdates(t *testing.T) {
	api := &fakeAPI{nextID: "E1"}
	g := newGateway(api, kiteCfg)
	g.Submit(context.Background(), types.OrderRequest{Intent: types.IntentEntry, Direction: types.Long, Size: 1})
	api.nextID = "X1"
	g.Submit(context.Background(), types.OrderRequest{Intent: types.IntentExit, Direction: types.Short, Size: 1})

	g.OnOrderUpdate(kiteconnect.Order{OrderID: "X1", Status: "COMPLETE", AveragePrice: 10})
	g.OnOrderUpdate(kiteconnect.Order{OrderID: "E1", Status: "REJECTED", StatusMessage: "RMS: margin"})

	if n := len(g.Events()); n != 1 {
		t.Fatalf("events = %d, want only the entry rejection", n)
	}
	ev := <-g.Events()
	if ev.Kind != types.OrderRejected || ev.Message != "RMS: margin" {
		t.Fatalf("event = %+v", ev)
	}

	if err := g.Cancel(context.Background(), "E1"); err != nil || api.cancelled[0] != "E1" {
		t.Fatalf("Cancel = %v, %v", err, api.cancelled)
	}
}

func TestOrderTag(t *testing.T) {
	if got := orderTag("LATE_FILL_OFFSET-with-a-very-long-suffix"); got != "LATEFILLOFFSETwithav" {
		t.Fatalf("orderTag = %q", got)
	}
}

// The ticker can deliver the fill before PlaceOrder returns. The update must
// not wait on the placement and must not be lost.
func TestFillArrivingDuringPlacement(t *testing.T) {
	api := &fakeAPI{nextID: "B7"}
	g := newGateway(api, kiteCfg)
	api.onPlace = func(id string) {
		done := make(chan struct{})
		go func() {
			g.OnOrderUpdate(kiteconnect.Order{OrderID: id, Status: "COMPLETE", AveragePrice: 22010})
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("order update blocked while the order was being placed")
		}
	}

	if _, err := g.Submit(context.Background(), types.OrderRequest{Intent: types.IntentEntry, Direction: types.Long, Size: 1}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if n := len(g.Events()); n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
	ev := <-g.Events()
	if ev.OrderID != "B7" || ev.Kind != types.OrderFilled || ev.Price != 22010 {
		t.Fatalf("event = %+v", ev)
	}

	g.OnOrderUpdate(kiteconnect.Order{OrderID: "B7", Status: "COMPLETE", AveragePrice: 22010})
	if n := len(g.Events()); n != 0 {
		t.Fatalf("replayed fill delivered twice")
	}
	if len(g.early) != 0 {
		t.Fatalf("early updates not cleared: %v", g.early)
	}
}
