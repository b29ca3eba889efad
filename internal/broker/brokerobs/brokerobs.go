package brokerobs

import (
	"context"
	"time"

	"don-futures/internal/interfaces"
	"don-futures/internal/logger"
	"don-futures/internal/metrics"
	"don-futures/internal/trace"
	"don-futures/internal/types"
)

// observableGateway wraps an OrderGateway with observability (logging,
// tracing and call latency).
type observableGateway struct {
	gateway interfaces.OrderGateway
}

var (
	_ interfaces.OrderGateway = (*observableGateway)(nil)
	_ interfaces.BarObserver  = (*observableGateway)(nil)
)

// Wrap wraps a gateway with observability middleware. Bar observation is
// forwarded when the inner gateway simulates fills.
func Wrap(gateway interfaces.OrderGateway) interfaces.OrderGateway {
	return &observableGateway{
		gateway: gateway,
	}
}

func observe(method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.BrokerCalls.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
}

// Submit places an order with observability
func (og *observableGateway) Submit(ctx context.Context, req types.OrderRequest) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Submit")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Submitting order",
		"symbol", req.Symbol,
		"intent", string(req.Intent),
		"direction", req.Direction.String(),
		"size", req.Size,
		"tag", req.Tag,
	)

	start := time.Now()
	id, err := og.gateway.Submit(ctx, req)
	observe("submit", start, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to submit order", err,
			"symbol", req.Symbol,
			"intent", string(req.Intent),
			"direction", req.Direction.String(),
		)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Order submitted", "symbol", req.Symbol, "order_id", id)
	return id, nil
}

// Cancel cancels an order with observability
func (og *observableGateway) Cancel(ctx context.Context, orderID string) error {
	ctx, span := trace.StartSpan(ctx, "broker.Cancel")
	defer span.End()

	start := time.Now()
	err := og.gateway.Cancel(ctx, orderID)
	observe("cancel", start, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel order", err, "order_id", orderID)
		return err
	}

	logger.DebugSkip(ctx, 1, "Order cancelled", "order_id", orderID)
	return nil
}

func (og *observableGateway) Events() <-chan types.OrderEvent {
	return og.gateway.Events()
}

func (og *observableGateway) OnBar(bar types.Bar) []types.OrderEvent {
	if obs, ok := og.gateway.(interfaces.BarObserver); ok {
		return obs.OnBar(bar)
	}
	return nil
}
