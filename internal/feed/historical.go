package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"don-futures/internal/interfaces"
	"don-futures/internal/store"
	"don-futures/internal/types"
)

// LoadHistorical reads the configured historical provider into memory.
// Naive CSV timestamps are read in loc. The ClickHouse password comes from
// CLICKHOUSE_PASSWORD.
func LoadHistorical(ctx context.Context, cfg store.FeedConfig, loc *time.Location) ([]types.Bar, error) {
	switch cfg.Provider {
	case "CSV":
		return LoadCSV(cfg.CSVPath, WithResample(cfg.ResampleMinutes), WithLocation(loc))
	case "CLICKHOUSE":
		src, err := NewClickHouseSource(ctx, cfg.ClickHouse, os.Getenv("CLICKHOUSE_PASSWORD"))
		if err != nil {
			return nil, err
		}
		defer src.Close()
		bars, err := Drain(ctx, src)
		if err != nil {
			return nil, err
		}
		if cfg.ResampleMinutes > 1 {
			bars = Resample(bars, time.Duration(cfg.ResampleMinutes)*time.Minute)
		}
		return bars, nil
	}
	return nil, fmt.Errorf("feed provider %s is not historical", cfg.Provider)
}

// Drain reads src to io.EOF.
func Drain(ctx context.Context, src interfaces.BarSource) ([]types.Bar, error) {
	var bars []types.Bar
	for {
		b, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return bars, nil
		}
		if err != nil {
			return bars, err
		}
		bars = append(bars, b)
	}
}
