package market

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StubData emits deterministic synthetic market data, useful for tests,
// offline work, and dry runs against the full engine.
type StubData struct {
	Base   float64 // starting price, default 100
	Drift  float64 // per-bar sinusoidal amplitude as a fraction of Base
	Spread float64 // absolute bid/ask half-spread
}

func (s StubData) base() float64 {
	if s.Base > 0 {
		return s.Base
	}
	return 100
}

// GetCandles returns count bars ending now with a deterministic sinusoidal
// close series so indicator lookbacks always have structure to work with.
func (s StubData) GetCandles(_ context.Context, symbol, _ string, count int) (CandleWindow, error) {
	if count <= 0 {
		return nil, fmt.Errorf("stub candles %s: non-positive count %d", symbol, count)
	}
	base := s.base()
	amp := s.Drift
	if amp == 0 {
		amp = 0.01
	}
	now := time.Now().UTC().Truncate(time.Minute)
	window := make(CandleWindow, count)
	for i := 0; i < count; i++ {
		close := base * (1 + amp*math.Sin(float64(i)/7))
		window[i] = Candle{
			Start:  now.Add(time.Duration(i-count) * 5 * time.Minute),
			Open:   close * 0.999,
			High:   close * 1.002,
			Low:    close * 0.998,
			Close:  close,
			Volume: 1000,
		}
	}
	return window, nil
}

// GetOrderBook returns a balanced five-level book around the stub price.
func (s StubData) GetOrderBook(_ context.Context, symbol string, depth int) (OrderBook, error) {
	if depth <= 0 {
		depth = 5
	}
	mid := s.base()
	half := s.Spread
	if half == 0 {
		half = mid * 0.0001
	}
	book := OrderBook{Symbol: symbol}
	for i := 0; i < depth; i++ {
		step := float64(i) * half
		book.Bids = append(book.Bids, Level{Price: mid - half - step, Size: 10})
		book.Asks = append(book.Asks, Level{Price: mid + half + step, Size: 10})
	}
	return book, nil
}

func (s StubData) GetTicker(_ context.Context, symbol string) (Ticker, error) {
	mid := s.base()
	half := s.Spread
	if half == 0 {
		half = mid * 0.0001
	}
	return Ticker{Symbol: symbol, LastPrice: mid, Bid: mid - half, Ask: mid + half}, nil
}

// StubExecution acknowledges every order without touching a venue and
// tracks the resulting live positions, mirroring the entry price it saw.
type StubExecution struct {
	log zerolog.Logger

	mu        sync.Mutex
	seq       int
	positions map[string]*LivePosition
	Balance_  float64
	// FailNext forces the next PlaceOrder to error, for failure-path tests.
	FailNext bool
}

// NewStubExecution builds an executor with the given deployable balance.
func NewStubExecution(log zerolog.Logger, balance float64) *StubExecution {
	return &StubExecution{log: log, positions: make(map[string]*LivePosition), Balance_: balance}
}

func (e *StubExecution) PlaceOrder(_ context.Context, symbol string, side Side, qty float64) (OrderAck, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailNext {
		e.FailNext = false
		return OrderAck{}, fmt.Errorf("stub execution: forced failure for %s", symbol)
	}
	e.seq++
	ack := OrderAck{OrderID: fmt.Sprintf("stub-%d", e.seq), Symbol: symbol, Side: side, Qty: qty}
	size := qty
	if side == Sell {
		size = -qty
	}
	e.positions[symbol] = &LivePosition{Symbol: symbol, Size: size}
	e.log.Info().Str("sym", symbol).Str("side", string(side)).Float64("qty", qty).Msg("submit order (stub)")
	return ack, nil
}

func (e *StubExecution) ClosePosition(_ context.Context, symbol string) (OrderAck, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	delete(e.positions, symbol)
	return OrderAck{OrderID: fmt.Sprintf("stub-%d", e.seq), Symbol: symbol}, nil
}

func (e *StubExecution) GetPosition(_ context.Context, symbol string) (*LivePosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[symbol]
	if !ok {
		return nil, nil
	}
	cp := *pos
	return &cp, nil
}

func (e *StubExecution) GetBalance(_ context.Context) (Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Balance{Available: e.Balance_}, nil
}

// SetPnl marks the tracked position with an unrealized result so monitoring
// paths can be exercised deterministically.
func (e *StubExecution) SetPnl(symbol string, pnl, pnlPercent float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pos, ok := e.positions[symbol]; ok {
		pos.Pnl = pnl
		pos.PnlPercent = pnlPercent
	}
}

// StubPredictor returns a fixed forecast, or ErrNotReady until armed.
type StubPredictor struct {
	mu       sync.Mutex
	Ready    bool
	Raw      float64 // [0,1] forecast; direction derives from >= 0.5
	retrains int
}

func (p *StubPredictor) Predict(_ context.Context, _ CandleWindow) (Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.Ready {
		return Prediction{}, ErrNotReady
	}
	dir := 0
	if p.Raw >= 0.5 {
		dir = 1
	}
	conf := math.Max(p.Raw, 1-p.Raw)
	return Prediction{Direction: dir, Confidence: conf, Raw: p.Raw}, nil
}

func (p *StubPredictor) RequestRetrain(_ context.Context, _ []CandleWindow) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrains++
	return nil
}

// Retrains reports how many retrain requests were received.
func (p *StubPredictor) Retrains() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retrains
}

// StubUniverse returns a fixed symbol list regardless of filters.
type StubUniverse struct {
	Symbols []string
}

func (u StubUniverse) GetInstruments(_ context.Context, _ float64, skipTopN, count int) ([]string, error) {
	syms := u.Symbols
	if skipTopN < len(syms) {
		syms = syms[skipTopN:]
	} else {
		syms = nil
	}
	if count > 0 && count < len(syms) {
		syms = syms[:count]
	}
	out := make([]string, len(syms))
	copy(out, syms)
	return out, nil
}
