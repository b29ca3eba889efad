package interfaces

import (
	"context"

	"don-futures/internal/types"
)

// OrderGateway submits market orders and reports fills and rejections
// asynchronously on Events.
type OrderGateway interface {
	Submit(ctx context.Context, req types.OrderRequest) (orderID string, err error)
	Cancel(ctx context.Context, orderID string) error
	Events() <-chan types.OrderEvent
}

// BarObserver is implemented by simulated gateways that fill against the
// bar stream. The engine calls OnBar before stepping the bar and applies the
// returned events on that step.
type BarObserver interface {
	OnBar(bar types.Bar) []types.OrderEvent
}
