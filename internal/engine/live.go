package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"don-futures/internal/interfaces"
	"don-futures/internal/logger"
	"don-futures/internal/types"
)

const minTimerDelay = 10 * time.Millisecond

// LiveEngine drives the same step as BacktestEngine from a real-time feed.
// One goroutine owns all position state; the feed and the gateway only
// send on channels. Order events from an asynchronous gateway are applied
// on the next bar.
type LiveEngine struct {
	core  *core
	src   interfaces.BarSource
	clock func() time.Time

	snap      atomic.Pointer[Snapshot]
	trades    atomic.Pointer[[]types.Trade]
	published int
}

var _ interfaces.Engine = (*LiveEngine)(nil)

// Run blocks until the feed ends, fails, or ctx is cancelled. The summary
// is returned in every case.
func (e *LiveEngine) Run(ctx context.Context) (*types.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bars := make(chan types.Bar, 64)
	feedErr := make(chan error, 1)
	go e.pump(ctx, bars, feedErr)

	events := e.core.gateway.Events()
	timer := time.NewTimer(e.untilBoundary())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.finish(), ctx.Err()

		case b, ok := <-bars:
			if !ok {
				err := <-feedErr
				if err != nil {
					err = fmt.Errorf("bar feed: %w", err)
				}
				return e.finish(), err
			}
			e.core.step(ctx, b)
			e.publish()

		case ev, ok := <-events:
			if !ok {
				events = nil
				logger.Warn(ctx, "Order event stream closed", "symbol", e.core.symbol)
				continue
			}
			e.core.enqueue(ev)

		case <-timer.C:
			if t := e.core.onSessionTimer(ctx, e.clock()); t != nil {
				e.publish()
			}
			timer.Reset(e.untilBoundary())
		}
	}
}

func (e *LiveEngine) pump(ctx context.Context, out chan<- types.Bar, errc chan<- error) {
	defer close(out)
	for {
		b, err := e.src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			errc <- err
			return
		}
		select {
		case out <- b:
		case <-ctx.Done():
			errc <- ctx.Err()
			return
		}
	}
}

// untilBoundary is the wait until the next session flatten, or until the
// next open when already past it.
func (e *LiveEngine) untilBoundary() time.Duration {
	now := e.clock()
	next := e.core.gate.NextFlatten(now)
	if !next.After(now) {
		next = e.core.gate.NextOpen(now)
	}
	if d := next.Sub(now); d > minTimerDelay {
		return d
	}
	return minTimerDelay
}

func (e *LiveEngine) publish() {
	s := e.core.snapshot()
	e.snap.Store(&s)
	if n := e.core.agg.Len(); n != e.published {
		trades := e.core.agg.Trades()
		e.trades.Store(&trades)
		e.published = n
	}
}

func (e *LiveEngine) finish() *types.Summary {
	e.publish()
	s := e.core.agg.Summary()
	return &s
}

// Snapshot is safe to call from any goroutine.
func (e *LiveEngine) Snapshot() Snapshot {
	return *e.snap.Load()
}

// Trades returns the trades closed so far. Safe to call from any goroutine.
func (e *LiveEngine) Trades() []types.Trade {
	p := e.trades.Load()
	if p == nil {
		return nil
	}
	return *p
}
