// Package paper is a deterministic simulated order gateway. Entry orders
// fill at the open of the bar after submission; exits are acknowledged
// immediately.
package paper

import (
	"context"
	"fmt"
	"math"
	"sync"

	"don-futures/internal/interfaces"
	"don-futures/internal/types"
)

// RejectFunc returns a non-empty reason to reject an entry order.
type RejectFunc func(req types.OrderRequest) string

type Option func(*Gateway)

func WithRejecter(f RejectFunc) Option {
	return func(g *Gateway) { g.reject = f }
}

type working struct {
	id     string
	req    types.OrderRequest
	reason string
}

type Gateway struct {
	mu      sync.Mutex
	seq     int
	working []working
	history []types.OrderRequest
	reject  RejectFunc
}

var (
	_ interfaces.OrderGateway = (*Gateway)(nil)
	_ interfaces.BarObserver  = (*Gateway)(nil)
)

func New(opts ...Option) *Gateway {
	g := &Gateway{}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) Submit(_ context.Context, req types.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	id := fmt.Sprintf("paper-%d", g.seq)
	g.history = append(g.history, req)
	if req.Intent != types.IntentEntry {
		return id, nil
	}
	w := working{id: id, req: req}
	if g.reject != nil {
		w.reason = g.reject(req)
	}
	g.working = append(g.working, w)
	return id, nil
}

func (g *Gateway) Cancel(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, w := range g.working {
		if w.id == orderID {
			g.working = append(g.working[:i], g.working[i+1:]...)
			return nil
		}
	}
	return nil
}

// Events is never written to; fills are delivered synchronously by OnBar.
func (g *Gateway) Events() <-chan types.OrderEvent {
	return nil
}

// OnBar resolves every working entry against the bar's open. A bar with an
// unusable open leaves the orders working.
func (g *Gateway) OnBar(bar types.Bar) []types.OrderEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.working) == 0 || math.IsNaN(bar.Open) || math.IsInf(bar.Open, 0) || bar.Open <= 0 {
		return nil
	}
	events := make([]types.OrderEvent, 0, len(g.working))
	for _, w := range g.working {
		ev := types.OrderEvent{OrderID: w.id, Kind: types.OrderFilled, Price: bar.Open, Time: bar.Time}
		if w.reason != "" {
			ev = types.OrderEvent{OrderID: w.id, Kind: types.OrderRejected, Time: bar.Time, Message: w.reason}
		}
		events = append(events, ev)
	}
	g.working = g.working[:0]
	return events
}

// History returns every order submitted, entries and exits.
func (g *Gateway) History() []types.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.OrderRequest, len(g.history))
	copy(out, g.history)
	return out
}
