// Package market defines the data shapes and capability contracts the
// engine consumes from the outside world: candles, order books, tickers,
// order execution, prediction, and universe selection.
package market

import "time"

// Candle is one OHLCV bar.
type Candle struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// CandleWindow is an ordered bar sequence for one instrument,
// most-recent-last. Treated as immutable once fetched.
type CandleWindow []Candle

// Closes extracts the close series in window order.
func (w CandleWindow) Closes() []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = c.Close
	}
	return out
}

// Last returns the most recent bar; ok is false for an empty window.
func (w CandleWindow) Last() (Candle, bool) {
	if len(w) == 0 {
		return Candle{}, false
	}
	return w[len(w)-1], true
}

// Level is one price level of an order book side.
type Level struct {
	Price float64
	Size  float64
}

// OrderBook is a depth snapshot. Bids descend from the best bid, asks
// ascend from the best ask.
type OrderBook struct {
	Symbol string
	Bids   []Level
	Asks   []Level
}

// Ticker carries last traded price and the current top of book.
type Ticker struct {
	Symbol    string
	LastPrice float64
	Bid       float64
	Ask       float64
}

// Side is an order direction understood by execution venues.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderAck acknowledges an accepted order.
type OrderAck struct {
	OrderID string
	Symbol  string
	Side    Side
	Qty     float64
}

// LivePosition is the venue's view of an open position.
type LivePosition struct {
	Symbol       string
	Size         float64
	EntryPrice   float64
	CurrentPrice float64
	Pnl          float64
	PnlPercent   float64 // fraction, 0.01 == +1%
}

// Balance reports deployable account funds.
type Balance struct {
	Available float64
}

// Prediction is the black-box directional forecast: Direction is 1 for up,
// 0 for down, Confidence the model's [0,1] certainty.
type Prediction struct {
	Direction  int
	Confidence float64
	Raw        float64
}
