package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"don-futures/internal/feed"
	"don-futures/internal/logger"
	"don-futures/internal/session"
	"don-futures/internal/store"
	"don-futures/internal/sweep"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	csvPath := flag.String("csv", "", "bars CSV; overrides feed.provider")
	workers := flag.Int("workers", 0, "parallel backtests; 0 uses sweep.workers")
	top := flag.Int("top", 0, "print only the best N results")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *csvPath, *workers, *top); err != nil {
		fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, csvPath string, workers, top int) error {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := store.LoadConfig(configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return err
	}
	if csvPath != "" {
		cfg.Feed.Provider = "CSV"
		cfg.Feed.CSVPath = csvPath
	}
	if workers <= 0 {
		workers = cfg.Sweep.Workers
	}

	gate, err := session.New(cfg.Session)
	if err != nil {
		return err
	}
	bars, err := feed.LoadHistorical(ctx, cfg.Feed, gate.Location())
	if err != nil {
		return err
	}

	grid := sweep.Grid(cfg.Exits, cfg.Sweep)
	timer := logger.StartOperation(ctx, "sweep", "runs", len(grid), "bars", len(bars), "workers", workers)
	results, err := sweep.Run(ctx, *cfg, bars, grid, workers)
	if err != nil {
		timer.EndWithError(err)
		return err
	}
	timer.End()

	if top > 0 && top < len(results) {
		results = results[:top]
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "stop\ttarget\ttrail_act\ttrades\twin_rate\tnet\tmax_dd\tpf\t")
	for _, r := range results {
		s := r.Summary
		fmt.Fprintf(w, "%.2f\t%.2f\t%.2f\t%d\t%.1f%%\t%.2f\t%.2f\t%.2f\t\n",
			r.Params.StopPts, r.Params.TargetPts, r.Params.TrailActivationPts,
			s.Trades, s.WinRate*100, s.NetDollars, s.MaxDrawdown, s.ProfitFactor)
	}
	return w.Flush()
}
