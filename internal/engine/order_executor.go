package engine

import (
	"context"
	"errors"
	"fmt"

	"don-futures/internal/interfaces"
	"don-futures/internal/logger"
	"don-futures/internal/types"
)

// errNoOrderID is returned when a gateway accepts an order without an ID.
var errNoOrderID = errors.New("gateway returned empty order id")

// orderExecutor turns position transitions into gateway orders.
type orderExecutor struct {
	gateway interfaces.OrderGateway
	symbol  string
	size    int
}

func newOrderExecutor(gw interfaces.OrderGateway, symbol string, size int) *orderExecutor {
	return &orderExecutor{gateway: gw, symbol: symbol, size: size}
}

// submitEntry sends the market order for a signal. A submit error means the
// entry is rejected; the caller stays Flat.
func (oe *orderExecutor) submitEntry(ctx context.Context, sig types.Signal) (string, error) {
	req := types.OrderRequest{
		Symbol:    oe.symbol,
		Intent:    types.IntentEntry,
		Direction: sig.Kind.Direction(),
		Size:      oe.size,
		Time:      sig.Origin.Time,
		RefPrice:  sig.Origin.Close,
		Tag:       string(sig.Reason),
	}
	id, err := oe.gateway.Submit(ctx, req)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to submit entry order", err,
			"symbol", oe.symbol,
			"direction", req.Direction.String(),
			"size", req.Size,
		)
		return "", fmt.Errorf("submit entry: %w", err)
	}
	if id == "" {
		return "", errNoOrderID
	}
	return id, nil
}

// submitExit sends the closing market order for a finished trade. Trade
// accounting does not wait for it.
func (oe *orderExecutor) submitExit(ctx context.Context, t *types.Trade) {
	req := types.OrderRequest{
		Symbol:    oe.symbol,
		Intent:    types.IntentExit,
		Direction: -t.Direction,
		Size:      t.Size,
		Time:      t.ExitTime,
		RefPrice:  t.ExitPrice,
		Tag:       string(t.ExitReason),
	}
	if _, err := oe.gateway.Submit(ctx, req); err != nil {
		logger.ErrorWithErr(ctx, "Failed to submit exit order", err,
			"symbol", oe.symbol,
			"position_id", t.ID,
			"exit_reason", string(t.ExitReason),
		)
	}
}

func (oe *orderExecutor) cancel(ctx context.Context, orderID string) {
	if orderID == "" {
		return
	}
	if err := oe.gateway.Cancel(ctx, orderID); err != nil {
		logger.Warn(ctx, "Failed to cancel pending entry",
			"symbol", oe.symbol,
			"order_id", orderID,
			"error", err,
		)
	}
}
