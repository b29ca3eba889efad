package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"don-futures/internal/broker/brokerobs"
	"don-futures/internal/broker/kite"
	"don-futures/internal/broker/paper"
	"don-futures/internal/feed"
	"don-futures/internal/interfaces"
	"don-futures/internal/logger"
	"don-futures/internal/store"
	"don-futures/internal/trace"
	"don-futures/internal/tradelog"
	"don-futures/internal/tradestore"
)

// initializeSystem initializes environment and logger
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadConfig reads the config and starts the tracer tagged with the run
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	if cfg.Mode == "BACKTEST" {
		return nil, errors.New("mode BACKTEST: use cmd/backtest")
	}
	if err := trace.Init(trace.WithRun(cfg.Mode, cfg.Instrument.Symbol, cfg.Strategy.Variant)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return cfg, nil
}

// compressOldLogs gzips trade logs past the configured retention
func compressOldLogs(ctx context.Context, sink *tradelog.Sink, retentionDays int) {
	n, err := sink.CompressOlder(retentionDays, time.Now())
	if err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "Compressed old trade logs", "files", n)
	}
}

// initializeGateway returns the order gateway with observability. The kite
// gateway is returned separately because the ticker delivers its order
// updates.
func initializeGateway(ctx context.Context, cfg *store.Config) (interfaces.OrderGateway, *kite.Gateway, error) {
	if cfg.Broker.Provider != "KITE" {
		logger.Warn(ctx, "Running in SHADOW mode - entries fill on the paper gateway")
		return brokerobs.Wrap(paper.New()), nil, nil
	}
	kg, err := kite.NewGateway(os.Getenv("KITE_API_KEY"), os.Getenv("KITE_ACCESS_TOKEN"), cfg.Broker.Kite)
	if err != nil {
		return nil, nil, fmt.Errorf("kite gateway: %w", err)
	}
	logger.Info(ctx, "Routing orders to Kite",
		"exchange", cfg.Broker.Kite.Exchange,
		"tradingsymbol", cfg.Broker.Kite.Tradingsymbol,
		"product", cfg.Broker.Kite.Product,
	)
	return brokerobs.Wrap(kg), kg, nil
}

// initializeFeed starts the configured market data stream. stop releases
// it on shutdown.
func initializeFeed(ctx context.Context, cfg *store.Config, kg *kite.Gateway) (src interfaces.BarSource, stop func(), err error) {
	switch cfg.Feed.Provider {
	case "KITE":
		tk, err := kite.NewTicker(os.Getenv("KITE_API_KEY"), os.Getenv("KITE_ACCESS_TOKEN"), cfg.Broker.Kite, kg)
		if err != nil {
			return nil, nil, fmt.Errorf("kite ticker: %w", err)
		}
		tk.Start(ctx)
		return feed.NewResume(tk.Bars()), func() { tk.Stop(ctx) }, nil

	case "KLINE_WS":
		if kg != nil {
			return nil, nil, errors.New("kite order updates need feed.provider KITE")
		}
		limit := time.Duration(cfg.Feed.ReconnectMaxSeconds) * time.Second
		ks := feed.NewKlineStream(cfg.Feed.Kline.URL, feed.WithBackoff(time.Second, limit))
		logger.Info(ctx, "Streaming klines", "url", cfg.Feed.Kline.URL)
		return feed.NewResume(ks), func() { ks.Close() }, nil
	}
	return nil, nil, fmt.Errorf("feed.provider %s cannot drive a live run", cfg.Feed.Provider)
}

// initializeSinks returns the trade log sink and, when enabled, a Postgres
// sink. The returned pool is nil without Postgres.
func initializeSinks(ctx context.Context, cfg *store.Config, log *tradelog.Sink) ([]interfaces.TradeSink, *pgxpool.Pool, error) {
	sinks := []interfaces.TradeSink{log}
	if !cfg.TradeLog.Postgres {
		return sinks, nil, nil
	}
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, nil, errors.New("tradelog.postgres is set but DATABASE_URL is empty")
	}
	pg, pool, err := tradestore.Connect(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(ctx, "Recording trades to Postgres")
	return append(sinks, pg), pool, nil
}
