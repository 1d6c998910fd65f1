package market

import (
	"context"
	"errors"
)

// ErrNotReady signals the predictor has no trained model yet. Adapters map
// it to a flat signal instead of failing the cycle.
var ErrNotReady = errors.New("predictor not ready")

// Data supplies read-only market state.
type Data interface {
	GetCandles(ctx context.Context, symbol, timeframe string, count int) (CandleWindow, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error)
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
}

// Execution places and unwinds orders on the venue.
type Execution interface {
	PlaceOrder(ctx context.Context, symbol string, side Side, qty float64) (OrderAck, error)
	ClosePosition(ctx context.Context, symbol string) (OrderAck, error)
	// GetPosition returns nil with no error when the venue holds no
	// position for the symbol.
	GetPosition(ctx context.Context, symbol string) (*LivePosition, error)
	GetBalance(ctx context.Context) (Balance, error)
}

// Predictor is the black-box directional model capability.
type Predictor interface {
	Predict(ctx context.Context, window CandleWindow) (Prediction, error)
	// RequestRetrain is fire-and-forget: the capability owns the work and
	// the engine never blocks a cycle on it.
	RequestRetrain(ctx context.Context, windows []CandleWindow) error
}

// Universe selects the instruments to trade.
type Universe interface {
	GetInstruments(ctx context.Context, minVolume float64, skipTopN, count int) ([]string, error)
}

// PriceCache serves streamed last prices. ok is false until the first tick
// for the symbol arrives; callers fall back to a REST ticker fetch.
type PriceCache interface {
	LastPrice(symbol string) (price float64, ok bool)
}
