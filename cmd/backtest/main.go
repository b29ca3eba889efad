package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"don-futures/internal/engine"
	"don-futures/internal/engine/engineobs"
	"don-futures/internal/eod"
	"don-futures/internal/eod/eodobs"
	"don-futures/internal/feed"
	"don-futures/internal/logger"
	"don-futures/internal/session"
	"don-futures/internal/store"
	"don-futures/internal/trace"
	"don-futures/internal/tradelog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	csvPath := flag.String("csv", "", "bars CSV; overrides feed.provider")
	writeLogs := flag.Bool("tradelog", true, "write the trade log and EOD reports")
	flag.Parse()

	if err := run(*configPath, *csvPath, *writeLogs); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, csvPath string, writeLogs bool) error {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	cfg, err := store.LoadConfig(configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return err
	}
	if err := trace.Init(trace.WithRun(cfg.Mode, cfg.Instrument.Symbol, cfg.Strategy.Variant)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	defer trace.Shutdown(context.Background())
	if csvPath != "" {
		cfg.Feed.Provider = "CSV"
		cfg.Feed.CSVPath = csvPath
	}

	gate, err := session.New(cfg.Session)
	if err != nil {
		return err
	}

	timer := logger.StartOperation(ctx, "load_bars", "provider", cfg.Feed.Provider)
	bars, err := feed.LoadHistorical(timer.GetContext(), cfg.Feed, gate.Location())
	if err != nil {
		timer.EndWithError(err)
		return err
	}
	timer.End("bars", len(bars))
	if len(bars) == 0 {
		return fmt.Errorf("no bars loaded from %s", cfg.Feed.Provider)
	}

	var opts []engine.Option
	var sink *tradelog.Sink
	if writeLogs {
		dir := filepath.Join(cfg.TradeLog.Dir, "backtest", time.Now().Format("20060102-150405"))
		sink = tradelog.New(dir, gate.Location())
		opts = append(opts, engine.WithTradeSink(sink))
	}

	bt, err := engine.NewBacktest(cfg, feed.NewSliceSource(bars), opts...)
	if err != nil {
		return err
	}
	summary, err := engineobs.Wrap(bt, "backtest").Run(ctx)
	if err != nil {
		return err
	}

	if sink != nil {
		summarizer := eodobs.Wrap(eod.NewSummarizer(sink, gate))
		seen := make(map[string]bool)
		for _, t := range bt.Trades() {
			day := t.ExitTime.In(gate.Location()).Format("2006-01-02")
			if seen[day] {
				continue
			}
			seen[day] = true
			if _, err := summarizer.SummarizeDay(t.ExitTime); err != nil {
				return err
			}
		}
		logger.Info(ctx, "Trade log written", "dir", sink.Dir(), "days", len(seen))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
