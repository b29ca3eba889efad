package kite

import (
	"context"
	"errors"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"don-futures/internal/logger"
	"don-futures/internal/metrics"
	"don-futures/internal/store"
)

// Ticker streams one instrument from the Kite websocket. Ticks feed a
// BarBuilder and order updates feed the Gateway.
type Ticker struct {
	ticker  *kiteticker.Ticker
	token   uint32
	bars    *BarBuilder
	gateway *Gateway
}

func NewTicker(apiKey, accessToken string, cfg store.KiteConfig, gateway *Gateway) (*Ticker, error) {
	if apiKey == "" || accessToken == "" {
		return nil, errors.New("missing API key/access token")
	}
	if cfg.InstrumentToken == 0 {
		return nil, errors.New("broker.kite.instrument_token is required")
	}
	return &Ticker{
		ticker:  kiteticker.New(apiKey, accessToken),
		token:   cfg.InstrumentToken,
		bars:    NewBarBuilder(time.Duration(cfg.BarSeconds) * time.Second),
		gateway: gateway,
	}, nil
}

// Bars is the bar stream built from this ticker's ticks.
func (t *Ticker) Bars() *BarBuilder { return t.bars }

func (t *Ticker) Start(ctx context.Context) {
	t.ticker.OnConnect(t.onConnect)
	t.ticker.OnError(t.onError)
	t.ticker.OnClose(t.onClose)
	t.ticker.OnReconnect(t.onReconnect)
	t.ticker.OnNoReconnect(t.onNoReconnect)
	t.ticker.OnTick(t.onTick)
	t.ticker.OnOrderUpdate(t.onOrderUpdate)

	go func() {
		logger.Info(ctx, "Starting Kite ticker", "instrument_token", t.token)
		t.ticker.Serve()
	}()
}

func (t *Ticker) Stop(ctx context.Context) {
	logger.Info(ctx, "Stopping Kite ticker")
	t.ticker.Stop()
}

// Subscriptions are lost on reconnect, so they are renewed on every connect.
func (t *Ticker) onConnect() {
	ctx := context.Background()
	tokens := []uint32{t.token}
	if err := t.ticker.Subscribe(tokens); err != nil {
		logger.ErrorWithErr(ctx, "Failed to subscribe", err, "instrument_token", t.token)
		return
	}
	if err := t.ticker.SetMode(kiteticker.ModeFull, tokens); err != nil {
		logger.ErrorWithErr(ctx, "Failed to set ticker mode", err, "instrument_token", t.token)
		return
	}
	logger.Info(ctx, "Kite ticker connected", "instrument_token", t.token)
}

func (t *Ticker) onError(err error) {
	logger.ErrorWithErr(context.Background(), "Kite ticker error", err)
}

func (t *Ticker) onClose(code int, reason string) {
	logger.Warn(context.Background(), "Kite ticker closed", "code", code, "reason", reason)
}

func (t *Ticker) onReconnect(attempt int, delay time.Duration) {
	metrics.FeedReconnects.WithLabelValues("kite").Inc()
	logger.Warn(context.Background(), "Kite ticker reconnecting", "attempt", attempt, "delay", delay)
}

func (t *Ticker) onNoReconnect(attempt int) {
	logger.Error(context.Background(), "Kite ticker gave up reconnecting", "attempt", attempt)
}

func (t *Ticker) onTick(tick models.Tick) {
	if tick.InstrumentToken != t.token {
		return
	}
	at := tick.Timestamp.Time
	if at.IsZero() {
		at = time.Now()
	}
	t.bars.AddTick(tick.LastPrice, tick.VolumeTraded, at)
}

func (t *Ticker) onOrderUpdate(order kiteconnect.Order) {
	if t.gateway != nil {
		t.gateway.OnOrderUpdate(order)
	}
}
