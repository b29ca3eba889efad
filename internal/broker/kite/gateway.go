// Package kite connects the engine to Zerodha Kite Connect: market orders
// through the REST client, fills from the ticker's order updates, and
// bars built from the same ticker's ticks.
package kite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"don-futures/internal/interfaces"
	"don-futures/internal/logger"
	"don-futures/internal/store"
	"don-futures/internal/types"
)

const maxTagLen = 20

// orderAPI is the slice of *kiteconnect.Client the gateway needs.
type orderAPI interface {
	PlaceOrder(variety string, params kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	CancelOrder(variety string, orderID string, parentOrderID *string) (kiteconnect.OrderResponse, error)
}

// Gateway places MARKET orders and turns order updates for its entry orders
// into engine events. Exits are fire-and-forget; updates for them and for
// orders placed elsewhere are ignored.
type Gateway struct {
	api    orderAPI
	cfg    store.KiteConfig
	events chan types.OrderEvent

	mu     sync.Mutex
	orders map[string]bool // order ID -> terminal event sent

	// Terminal updates for unknown orders seen while a placement is in
	// flight. The order may be ours and its response not yet back.
	placing int
	early   map[string]kiteconnect.Order
}

var _ interfaces.OrderGateway = (*Gateway)(nil)

// NewGateway builds a gateway on a logged-in Kite client.
func NewGateway(apiKey, accessToken string, cfg store.KiteConfig) (*Gateway, error) {
	if apiKey == "" || accessToken == "" {
		return nil, errors.New("missing API key/access token")
	}
	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(accessToken)
	return newGateway(kc, cfg), nil
}

func newGateway(api orderAPI, cfg store.KiteConfig) *Gateway {
	return &Gateway{
		api:    api,
		cfg:    cfg,
		events: make(chan types.OrderEvent, 64),
		orders: make(map[string]bool),
		early:  make(map[string]kiteconnect.Order),
	}
}

func (g *Gateway) Submit(ctx context.Context, req types.OrderRequest) (string, error) {
	side := kiteconnect.TransactionTypeBuy
	if req.Direction == types.Short {
		side = kiteconnect.TransactionTypeSell
	}
	params := kiteconnect.OrderParams{
		Exchange:        g.cfg.Exchange,
		Tradingsymbol:   g.cfg.Tradingsymbol,
		Product:         g.cfg.Product,
		OrderType:       kiteconnect.OrderTypeMarket,
		TransactionType: side,
		Validity:        kiteconnect.ValidityDay,
		Quantity:        req.Size,
		Tag:             orderTag(req.Tag),
	}

	g.mu.Lock()
	g.placing++
	g.mu.Unlock()

	resp, err := g.api.PlaceOrder(kiteconnect.VarietyRegular, params)

	g.mu.Lock()
	g.placing--
	early, raced := g.early[resp.OrderID]
	if err == nil && req.Intent == types.IntentEntry {
		g.orders[resp.OrderID] = false
	} else {
		raced = false
	}
	delete(g.early, resp.OrderID)
	if g.placing == 0 {
		clear(g.early)
	}
	g.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("place %s order: %w", side, err)
	}

	logger.Info(ctx, "Kite order placed",
		"order_id", resp.OrderID,
		"tradingsymbol", g.cfg.Tradingsymbol,
		"side", side,
		"qty", req.Size,
		"intent", string(req.Intent),
	)
	if raced {
		g.OnOrderUpdate(early)
	}
	return resp.OrderID, nil
}

func (g *Gateway) Cancel(ctx context.Context, orderID string) error {
	if _, err := g.api.CancelOrder(kiteconnect.VarietyRegular, orderID, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

func (g *Gateway) Events() <-chan types.OrderEvent {
	return g.events
}

func terminal(status string) bool {
	return status == "COMPLETE" || status == "REJECTED" || status == "CANCELLED"
}

// OnOrderUpdate is registered as the ticker's order-update callback.
func (g *Gateway) OnOrderUpdate(order kiteconnect.Order) {
	g.mu.Lock()
	sent, ours := g.orders[order.OrderID]
	if !ours {
		if g.placing > 0 && terminal(order.Status) {
			g.early[order.OrderID] = order
		}
		g.mu.Unlock()
		return
	}
	if sent {
		g.mu.Unlock()
		return
	}

	at := order.ExchangeUpdateTimestamp.Time
	if at.IsZero() {
		at = time.Now()
	}
	var ev types.OrderEvent
	switch order.Status {
	case "COMPLETE":
		ev = types.OrderEvent{OrderID: order.OrderID, Kind: types.OrderFilled, Price: order.AveragePrice, Time: at}
	case "REJECTED", "CANCELLED":
		ev = types.OrderEvent{OrderID: order.OrderID, Kind: types.OrderRejected, Time: at, Message: order.StatusMessage}
	default:
		g.mu.Unlock()
		logger.Debug(context.Background(), "Order update", "order_id", order.OrderID, "status", order.Status)
		return
	}
	g.orders[order.OrderID] = true
	g.mu.Unlock()

	g.events <- ev
}

// orderTag fits an engine tag into Kite's 20 character alphanumeric limit.
func orderTag(tag string) string {
	tag = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return -1
	}, tag)
	if len(tag) > maxTagLen {
		tag = tag[:maxTagLen]
	}
	return tag
}
