package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"don-futures/internal/logger"
	"don-futures/internal/metrics"
	"don-futures/internal/types"
)

const (
	klineReadTimeout = 60 * time.Second
	klinePingEvery   = 15 * time.Second
)

// KlineStream consumes a Binance-style kline websocket and yields closed
// klines only. It reconnects with exponential backoff until closed.
type KlineStream struct {
	url        string
	minBackoff time.Duration
	maxBackoff time.Duration

	bars   chan types.Bar
	errc   chan error
	once   sync.Once
	cancel context.CancelFunc
}

type KlineOption func(*KlineStream)

// WithBackoff sets the first reconnect delay and its cap. The delay grows
// by 1.8x per failed attempt and resets once a kline is delivered.
func WithBackoff(initial, limit time.Duration) KlineOption {
	return func(k *KlineStream) {
		k.minBackoff = initial
		k.maxBackoff = limit
	}
}

func NewKlineStream(url string, opts ...KlineOption) *KlineStream {
	k := &KlineStream{
		url:        url,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		bars:       make(chan types.Bar, 256),
		errc:       make(chan error, 1),
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Next starts the connection on first use. Replayed klines after a
// reconnect are passed through; wrap the stream in Resume to drop them.
func (k *KlineStream) Next(ctx context.Context) (types.Bar, error) {
	k.once.Do(func() {
		runCtx, cancel := context.WithCancel(context.Background())
		k.cancel = cancel
		go func() { k.errc <- k.Run(runCtx, k.bars) }()
	})
	select {
	case b := <-k.bars:
		return b, nil
	case err := <-k.errc:
		return types.Bar{}, err
	case <-ctx.Done():
		return types.Bar{}, ctx.Err()
	}
}

func (k *KlineStream) Close() error {
	if k.cancel != nil {
		k.cancel()
	}
	return nil
}

// Run pumps closed klines into out until ctx is cancelled.
func (k *KlineStream) Run(ctx context.Context, out chan<- types.Bar) error {
	backoff := k.minBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delivered, err := k.consume(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			backoff = k.minBackoff
		}
		metrics.FeedReconnects.WithLabelValues("kline_ws").Inc()
		logger.Warn(ctx, "Kline stream disconnected, retrying",
			"url", k.url,
			"error", err,
			"backoff_ms", backoff.Milliseconds(),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(math.Min(float64(k.maxBackoff), float64(backoff)*1.8))
	}
}

func (k *KlineStream) consume(ctx context.Context, out chan<- types.Bar) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, k.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	logger.Info(ctx, "Connected kline stream", "url", k.url)

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(klineReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(klineReadTimeout))
	})

	connCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		ticker := time.NewTicker(klinePingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-connCtx.Done():
				// Unblocks ReadMessage on shutdown.
				conn.Close()
				return
			}
		}
	}()

	delivered := false
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return delivered, err
		}
		conn.SetReadDeadline(time.Now().Add(klineReadTimeout))

		bar, closed, err := ParseKline(payload)
		if err != nil {
			logger.Debug(ctx, "Ignoring kline message", "error", err)
			continue
		}
		if !closed {
			continue
		}
		select {
		case out <- bar:
			delivered = true
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}

type klineEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type klineEvent struct {
	Event string `json:"e"`
	K     *struct {
		Start  int64  `json:"t"`
		Open   string `json:"o"`
		High   string `json:"h"`
		Low    string `json:"l"`
		Close  string `json:"c"`
		Volume string `json:"v"`
		Closed bool   `json:"x"`
	} `json:"k"`
}

var errNotKline = errors.New("not a kline event")

// ParseKline decodes a raw or combined-stream kline message. closed
// reports whether the kline is final.
func ParseKline(payload []byte) (bar types.Bar, closed bool, err error) {
	var env klineEnvelope
	if err := json.Unmarshal(payload, &env); err == nil && len(env.Data) > 0 {
		payload = env.Data
	}
	var ev klineEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return types.Bar{}, false, err
	}
	if ev.K == nil {
		return types.Bar{}, false, errNotKline
	}
	k := ev.K
	bar.Time = time.UnixMilli(k.Start).UTC()
	for _, f := range []struct {
		raw string
		dst *float64
	}{{k.Open, &bar.Open}, {k.High, &bar.High}, {k.Low, &bar.Low}, {k.Close, &bar.Close}, {k.Volume, &bar.Volume}} {
		if *f.dst, err = strconv.ParseFloat(f.raw, 64); err != nil {
			return types.Bar{}, false, fmt.Errorf("kline field: %w", err)
		}
	}
	return bar, k.Closed, nil
}
