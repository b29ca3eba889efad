package types

import "time"

// Bar is one completed OHLCV interval. Time is the interval's open time.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type ChannelState struct {
	Period int     `json:"period"`
	Upper  float64 `json:"upper"`
	Lower  float64 `json:"lower"`
	Ready  bool    `json:"ready"`
}

type Direction int

const (
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	}
	return "NONE"
}

type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalLong
	SignalShort
)

func (k SignalKind) Direction() Direction {
	switch k {
	case SignalLong:
		return Long
	case SignalShort:
		return Short
	}
	return 0
}

func (k SignalKind) String() string {
	return k.Direction().String()
}

type SignalReason string

const (
	ReasonFailedTestFade   SignalReason = "FAILED_TEST_FADE"
	ReasonBounceReject     SignalReason = "BOUNCE_REJECT"
	ReasonBreakout         SignalReason = "BREAKOUT"
	ReasonThreeBarMomentum SignalReason = "THREE_BAR_MOMENTUM"
)

type Signal struct {
	Kind   SignalKind   `json:"kind"`
	Origin Bar          `json:"origin"`
	Reason SignalReason `json:"reason"`
}

func (s Signal) IsNone() bool { return s.Kind == SignalNone }

type ExitReason string

const (
	ExitTarget         ExitReason = "TARGET"
	ExitStop           ExitReason = "STOP"
	ExitTrailStop      ExitReason = "TRAIL_STOP"
	ExitTime           ExitReason = "TIME_EXIT"
	ExitSessionFlatten ExitReason = "SESSION_FLATTEN"
)

// ExitReasons lists every exit reason in report order.
var ExitReasons = []ExitReason{ExitTarget, ExitStop, ExitTrailStop, ExitTime, ExitSessionFlatten}

type Position struct {
	ID                    string       `json:"id"`
	Direction             Direction    `json:"direction"`
	EntryReason           SignalReason `json:"entry_reason"`
	EntryPrice            float64      `json:"entry_price"`
	EntryTime             time.Time    `json:"entry_time"`
	Size                  int          `json:"size"`
	StopPrice             float64      `json:"stop_price"`
	TargetPrice           float64      `json:"target_price"`
	TrailActive           bool         `json:"trail_active"`
	TrailDistance         float64      `json:"trail_distance"`
	StopTrailed           bool         `json:"stop_trailed"`
	BarsHeld              int          `json:"bars_held"`
	MaxFavorableExcursion float64      `json:"mfe"`
}

type Trade struct {
	ID                    string       `json:"id"`
	Symbol                string       `json:"symbol"`
	Direction             Direction    `json:"direction"`
	EntryReason           SignalReason `json:"entry_reason"`
	EntryPrice            float64      `json:"entry_price"`
	EntryTime             time.Time    `json:"entry_time"`
	ExitPrice             float64      `json:"exit_price"`
	ExitTime              time.Time    `json:"exit_time"`
	ExitReason            ExitReason   `json:"exit_reason"`
	Size                  int          `json:"size"`
	BarsHeld              int          `json:"bars_held"`
	MaxFavorableExcursion float64      `json:"mfe"`
	PnLPoints             float64      `json:"pnl_points"`
	PnLDollars            float64      `json:"pnl_dollars"`
	Commission            float64      `json:"commission"`
}

type OrderIntent string

const (
	IntentEntry OrderIntent = "ENTRY"
	IntentExit  OrderIntent = "EXIT"
)

type OrderRequest struct {
	Symbol    string      `json:"symbol"`
	Intent    OrderIntent `json:"intent"`
	Direction Direction   `json:"direction"`
	Size      int         `json:"size"`
	Time      time.Time   `json:"time"`
	RefPrice  float64     `json:"ref_price"`
	Tag       string      `json:"tag"`
}

type OrderEventKind string

const (
	OrderFilled   OrderEventKind = "FILLED"
	OrderRejected OrderEventKind = "REJECTED"
)

type OrderEvent struct {
	OrderID string         `json:"order_id"`
	Kind    OrderEventKind `json:"kind"`
	Price   float64        `json:"price"`
	Time    time.Time      `json:"time"`
	Message string         `json:"message,omitempty"`
}

type PositionState string

const (
	StateFlat         PositionState = "FLAT"
	StatePendingEntry PositionState = "PENDING_ENTRY"
	StateOpen         PositionState = "OPEN"
)

type StepResult struct {
	Bar      Bar           `json:"bar"`
	Accepted bool          `json:"accepted"`
	Valid    bool          `json:"valid"`
	Channel  ChannelState  `json:"channel"`
	Signal   Signal        `json:"signal"`
	State    PositionState `json:"state"`
	Trade    *Trade        `json:"trade,omitempty"`
	Err      error         `json:"-"`
}

type ExitStats struct {
	Count      int     `json:"count"`
	PnLPoints  float64 `json:"pnl_points"`
	NetDollars float64 `json:"net_dollars"`
}

type Summary struct {
	Trades       int                      `json:"trades"`
	Wins         int                      `json:"wins"`
	Losses       int                      `json:"losses"`
	WinRate      float64                  `json:"win_rate"`
	GrossPoints  float64                  `json:"gross_points"`
	GrossDollars float64                  `json:"gross_dollars"`
	Commission   float64                  `json:"commission"`
	NetDollars   float64                  `json:"net_dollars"`
	AvgWin       float64                  `json:"avg_win"`
	AvgLoss      float64                  `json:"avg_loss"`
	ProfitFactor float64                  `json:"profit_factor"`
	MaxDrawdown  float64                  `json:"max_drawdown"`
	ByExit       map[ExitReason]ExitStats `json:"by_exit"`
}
