package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"don-futures/internal/interfaces"
	"don-futures/internal/types"
)

// ctxCheckEvery bounds how many bars a backtest processes between
// cancellation checks.
const ctxCheckEvery = 4096

// BacktestEngine makes one pass over a finite bar source with no waits
// between bars. A position still open when the source ends is left open
// and does not appear in the summary.
type BacktestEngine struct {
	core *core
	src  interfaces.BarSource
}

var _ interfaces.Engine = (*BacktestEngine)(nil)

func (e *BacktestEngine) Run(ctx context.Context) (*types.Summary, error) {
	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		b, err := e.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read bar: %w", err)
		}
		e.core.step(ctx, b)
	}
	s := e.core.agg.Summary()
	return &s, nil
}

// Step feeds one bar directly, bypassing the source.
func (e *BacktestEngine) Step(ctx context.Context, b types.Bar) types.StepResult {
	return e.core.step(ctx, b)
}

// Trades returns the closed trades in exit order.
func (e *BacktestEngine) Trades() []types.Trade {
	return e.core.agg.Trades()
}

func (e *BacktestEngine) Snapshot() Snapshot {
	return e.core.snapshot()
}
