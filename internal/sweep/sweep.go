// Package sweep backtests a grid of stop and target distances in parallel
// over one shared bar series.
package sweep

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"don-futures/internal/engine"
	"don-futures/internal/feed"
	"don-futures/internal/store"
	"don-futures/internal/types"
)

type Params struct {
	StopPts            float64 `json:"stop_pts"`
	TargetPts          float64 `json:"target_pts"`
	TrailActivationPts float64 `json:"trail_activation_pts"`
}

type Result struct {
	Params  Params        `json:"params"`
	Summary types.Summary `json:"summary"`
}

// Grid expands the stop x target product. With a positive lead the trail
// activates lead points short of the target, but never closer than the stop
// distance; otherwise the base config's activation is kept.
func Grid(base store.ExitConfig, sw store.SweepConfig) []Params {
	stops := sw.StopPts
	if len(stops) == 0 {
		stops = []float64{base.StopPts}
	}
	targets := sw.TargetPts
	if len(targets) == 0 {
		targets = []float64{base.TargetPts}
	}

	grid := make([]Params, 0, len(stops)*len(targets))
	for _, s := range stops {
		for _, t := range targets {
			act := base.TrailActivationPts
			if sw.TrailLeadPts > 0 {
				act = max(t-sw.TrailLeadPts, s)
			}
			grid = append(grid, Params{StopPts: s, TargetPts: t, TrailActivationPts: act})
		}
	}
	return grid
}

// Run backtests every grid point with at most workers concurrent runs and
// returns results sorted by net dollars, best first. Each run gets its own
// copy of cfg; bars are only read.
func Run(ctx context.Context, cfg store.Config, bars []types.Bar, grid []Params, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]Result, len(grid))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range grid {
		g.Go(func() error {
			run := cfg
			run.Exits.StopPts = p.StopPts
			run.Exits.TargetPts = p.TargetPts
			run.Exits.TrailActivationPts = p.TrailActivationPts

			eng, err := engine.NewBacktest(&run, feed.NewSliceSource(bars))
			if err != nil {
				return fmt.Errorf("stop %.2f target %.2f: %w", p.StopPts, p.TargetPts, err)
			}
			sum, err := eng.Run(ctx)
			if err != nil {
				return fmt.Errorf("stop %.2f target %.2f: %w", p.StopPts, p.TargetPts, err)
			}
			results[i] = Result{Params: p, Summary: *sum}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Summary.NetDollars != b.Summary.NetDollars {
			return a.Summary.NetDollars > b.Summary.NetDollars
		}
		if a.Params.StopPts != b.Params.StopPts {
			return a.Params.StopPts < b.Params.StopPts
		}
		return a.Params.TargetPts < b.Params.TargetPts
	})
	return results, nil
}
