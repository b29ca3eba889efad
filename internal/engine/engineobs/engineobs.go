package engineobs

import (
	"context"
	"errors"
	"time"

	"don-futures/internal/interfaces"
	"don-futures/internal/logger"
	"don-futures/internal/trace"
	"don-futures/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
	name   string
}

var _ interfaces.Engine = (*observableEngine)(nil)

// Wrap adds a span and start/finish logs around Run. name labels the run
// in logs, e.g. "backtest" or "live".
func Wrap(eng interfaces.Engine, name string) interfaces.Engine {
	return &observableEngine{
		engine: eng,
		name:   name,
	}
}

func (oe *observableEngine) Run(ctx context.Context) (*types.Summary, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Run")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting engine run",
		"engine", oe.name,
	)

	summary, err := oe.engine.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorWithErrSkip(ctx, 1, "Engine run failed", err,
			"engine", oe.name,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return summary, err
	}

	attrs := []any{
		"engine", oe.name,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if summary != nil {
		attrs = append(attrs,
			"trades", summary.Trades,
			"win_rate", summary.WinRate,
			"net_dollars", summary.NetDollars,
			"max_drawdown", summary.MaxDrawdown,
		)
	}
	logger.InfoSkip(ctx, 1, "Engine run completed", attrs...)

	return summary, err
}
