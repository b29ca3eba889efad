package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"don-futures/internal/api"
	"don-futures/internal/engine"
	"don-futures/internal/engine/engineobs"
	"don-futures/internal/eod"
	"don-futures/internal/eod/eodobs"
	"don-futures/internal/interfaces"
	"don-futures/internal/logger"
	"don-futures/internal/session"
	"don-futures/internal/trace"
	"don-futures/internal/tradelog"
)

const eodCheckInterval = time.Minute

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer trace.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		logger.ErrorWithErr(context.Background(), "Live run failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	gate, err := session.New(cfg.Session)
	if err != nil {
		return err
	}

	tradeLog := tradelog.New(cfg.TradeLog.Dir, gate.Location())
	compressOldLogs(ctx, tradeLog, cfg.TradeLog.RetentionDays)
	summarizer := eodobs.Wrap(eod.NewSummarizer(tradeLog, gate))

	gateway, kg, err := initializeGateway(ctx, cfg)
	if err != nil {
		return err
	}
	src, stopFeed, err := initializeFeed(ctx, cfg, kg)
	if err != nil {
		return err
	}
	defer stopFeed()

	sinks, pool, err := initializeSinks(ctx, cfg, tradeLog)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	live, err := engine.NewLive(cfg, src,
		engine.WithGateway(gateway),
		engine.WithTradeSink(sinks...),
		engine.WithMetrics(),
		engine.WithTradeLogging(),
	)
	if err != nil {
		return err
	}

	if cfg.Server.Enabled {
		srv := api.NewServer(cfg.Server.Addr, cfg.Mode, live)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.ErrorWithErr(ctx, "Status server stopped", err)
			}
		}()
	}
	go runEOD(ctx, summarizer)

	logger.Info(ctx, "Live engine started",
		"mode", cfg.Mode,
		"symbol", cfg.Instrument.Symbol,
		"strategy", cfg.Strategy.Variant,
		"feed", cfg.Feed.Provider,
		"broker", cfg.Broker.Provider,
	)
	summary, err := engineobs.Wrap(live, "live").Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info(context.Background(), "Shutting down...")
	if p, err := summarizer.SummarizeDay(time.Now()); err == nil && p != "" {
		logger.Info(context.Background(), "EOD CSV written", "path", p)
	}
	if summary != nil {
		b, _ := json.Marshal(summary)
		fmt.Println(string(b))
	}
	return nil
}

func runEOD(ctx context.Context, summarizer interfaces.EodSummarizer) {
	tick := time.NewTicker(eodCheckInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			if ok, _ := summarizer.ShouldRunNow(now); !ok {
				continue
			}
			if p, err := summarizer.SummarizeDay(now); err == nil && p != "" {
				logger.Info(ctx, "EOD CSV written", "path", p)
			}
		}
	}
}
