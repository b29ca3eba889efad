// Package feed adapts bar stores and market data streams to
// interfaces.BarSource.
package feed

import (
	"context"
	"io"
	"time"

	"don-futures/internal/interfaces"
	"don-futures/internal/logger"
	"don-futures/internal/types"
)

// SliceSource replays bars held in memory. The slice is never modified, so
// several sources may share one backing slice.
type SliceSource struct {
	bars []types.Bar
	i    int
}

var _ interfaces.BarSource = (*SliceSource)(nil)

func NewSliceSource(bars []types.Bar) *SliceSource {
	return &SliceSource{bars: bars}
}

func (s *SliceSource) Next(ctx context.Context) (types.Bar, error) {
	if s.i >= len(s.bars) {
		return types.Bar{}, io.EOF
	}
	b := s.bars[s.i]
	s.i++
	return b, nil
}

func (s *SliceSource) Len() int { return len(s.bars) }

// Bars exposes the backing slice read-only.
func (s *SliceSource) Bars() []types.Bar { return s.bars }

// ChanSource reads bars pushed by another goroutine. A closed channel ends
// the stream.
type ChanSource struct {
	ch <-chan types.Bar
}

func NewChanSource(ch <-chan types.Bar) *ChanSource {
	return &ChanSource{ch: ch}
}

func (s *ChanSource) Next(ctx context.Context) (types.Bar, error) {
	select {
	case b, ok := <-s.ch:
		if !ok {
			return types.Bar{}, io.EOF
		}
		return b, nil
	case <-ctx.Done():
		return types.Bar{}, ctx.Err()
	}
}

// Resume drops bars at or before the last one delivered. Streams replay
// recent bars after a reconnect; Resume keeps them from reaching the
// engine twice.
type Resume struct {
	src     interfaces.BarSource
	last    time.Time
	started bool
	dropped int64
}

func NewResume(src interfaces.BarSource) *Resume {
	return &Resume{src: src}
}

func (r *Resume) Next(ctx context.Context) (types.Bar, error) {
	for {
		b, err := r.src.Next(ctx)
		if err != nil {
			return types.Bar{}, err
		}
		if r.started && !b.Time.After(r.last) {
			r.dropped++
			if logger.IsDebugEnabled() {
				logger.Debug(ctx, "Dropping replayed bar", "bar_time", b.Time, "last_time", r.last)
			}
			continue
		}
		r.started = true
		r.last = b.Time
		return b, nil
	}
}

// Dropped counts bars discarded as replays.
func (r *Resume) Dropped() int64 { return r.dropped }
