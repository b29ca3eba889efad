package interfaces

import (
	"context"

	"don-futures/internal/types"
)

// BarSource yields completed bars in strictly increasing time order.
// io.EOF marks the end of the stream.
type BarSource interface {
	Next(ctx context.Context) (types.Bar, error)
}

type TradeSink interface {
	Record(ctx context.Context, trade types.Trade) error
}
