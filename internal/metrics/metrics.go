package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"don-futures/internal/types"
)

var (
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futures_bars_total", Help: "Bars processed by outcome"},
		[]string{"symbol", "outcome"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futures_signals_total", Help: "Entry signals acted on"},
		[]string{"symbol", "reason", "direction"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futures_order_events_total", Help: "Order events applied"},
		[]string{"symbol", "kind"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futures_trades_total", Help: "Closed trades by exit reason"},
		[]string{"symbol", "exit_reason"},
	)
	NetPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "futures_net_pnl_dollars", Help: "Cumulative net P&L after commission"},
		[]string{"symbol"},
	)
	PositionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "futures_position_state", Help: "0 flat, 1 pending entry, 2 open"},
		[]string{"symbol"},
	)
	FeedReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futures_feed_reconnects_total", Help: "Market data reconnect attempts"},
		[]string{"provider"},
	)
	BrokerCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "futures_broker_call_seconds", Help: "Order gateway call latency", Buckets: prometheus.DefBuckets},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(BarsTotal, SignalsTotal, OrdersTotal, TradesTotal, NetPnL, PositionState, FeedReconnects, BrokerCalls)
}

func ObserveBar(symbol string, res types.StepResult) {
	outcome := "accepted"
	switch {
	case !res.Accepted:
		outcome = "rejected"
	case !res.Valid:
		outcome = "invalid"
	}
	BarsTotal.WithLabelValues(symbol, outcome).Inc()

	state := 0.0
	switch res.State {
	case types.StatePendingEntry:
		state = 1
	case types.StateOpen:
		state = 2
	}
	PositionState.WithLabelValues(symbol).Set(state)
}

func ObserveSignal(symbol string, sig types.Signal) {
	SignalsTotal.WithLabelValues(symbol, string(sig.Reason), sig.Kind.String()).Inc()
}

func ObserveOrderEvent(symbol string, ev types.OrderEvent) {
	OrdersTotal.WithLabelValues(symbol, string(ev.Kind)).Inc()
}

func ObserveTrade(symbol string, t types.Trade, net float64) {
	TradesTotal.WithLabelValues(symbol, string(t.ExitReason)).Inc()
	NetPnL.WithLabelValues(symbol).Set(net)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
