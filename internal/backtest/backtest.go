// Package backtest replays historical candles through the same fusion
// logic the live engine uses, simulating an immediate one-bar exit per
// decision. The risk manager's position lifecycle is deliberately not
// reused: the single-bar holding assumption is a known approximation of
// live behaviour, not a goal.
package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"hybridbot/internal/config"
	"hybridbot/internal/fusion"
	"hybridbot/internal/indicator"
	"hybridbot/internal/market"
	"hybridbot/internal/signal"
	"hybridbot/internal/strategy"
)

// Trade records one simulated round trip: entry at the window close, exit
// at the following bar's close.
type Trade struct {
	Time       time.Time
	Symbol     string
	Direction  signal.Direction
	EntryPrice float64
	ExitPrice  float64
	Pnl        float64
	PnlPercent float64
	Confidence float64
}

// Report aggregates the replay outcome.
type Report struct {
	Symbol        string
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalPnl      float64
	ROI           float64
	Trades        []Trade
}

// Harness replays a candle series through the analyzer set and fusion.
type Harness struct {
	cfg            *config.Config
	strategies     strategy.Set
	book           market.OrderBook // deterministic stub book for every bar
	initialBalance float64
	log            zerolog.Logger
}

// New builds a harness. The predictor is injected so tests and offline
// runs can stub it deterministically; the order book snapshot is reused
// for every bar since depth history is not part of the candle record.
func New(cfg *config.Config, predictor market.Predictor, book market.OrderBook, initialBalance float64, log zerolog.Logger) *Harness {
	if initialBalance <= 0 {
		initialBalance = 10000
	}
	return &Harness{
		cfg:            cfg,
		strategies:     strategy.Build(cfg.Strategy, cfg.Strategy.LookbackBars, predictor),
		book:           book,
		initialBalance: initialBalance,
		log:            log.With().Str("component", "backtest").Logger(),
	}
}

// Run walks the series: for each index beyond the lookback it forms the
// trailing window, fuses the three signals, and books a one-contract trade
// exiting at the next bar's close whenever the decision is tradable.
func (h *Harness) Run(ctx context.Context, symbol string, candles market.CandleWindow) (Report, error) {
	report := Report{Symbol: symbol}
	lookback := h.cfg.Strategy.LookbackBars
	if len(candles) < lookback+2 {
		return report, indicator.ErrInsufficientData
	}

	for i := lookback; i < len(candles)-1; i++ {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		window := candles[i-lookback : i+1]
		entryPrice := window[len(window)-1].Close

		in := strategy.Input{Symbol: symbol, Window: window, Book: h.book, LastPrice: entryPrice}
		signals, err := h.collect(ctx, in)
		if err != nil {
			if errors.Is(err, indicator.ErrInsufficientData) {
				continue
			}
			return report, err
		}

		decision := fusion.Fuse(symbol, signals, h.cfg.Weights, h.cfg.Risk.ConfidenceThreshold)
		if decision.Direction == signal.None {
			continue
		}

		exitPrice := candles[i+1].Close
		pnl := exitPrice - entryPrice
		if decision.Direction == signal.Sell {
			pnl = -pnl
		}

		trade := Trade{
			Time:       window[len(window)-1].Start,
			Symbol:     symbol,
			Direction:  decision.Direction,
			EntryPrice: entryPrice,
			ExitPrice:  exitPrice,
			Pnl:        pnl,
			PnlPercent: pnl / entryPrice * 100,
			Confidence: decision.Confidence,
		}
		report.Trades = append(report.Trades, trade)
		report.TotalTrades++
		if pnl > 0 {
			report.WinningTrades++
		} else {
			report.LosingTrades++
		}
		report.TotalPnl += pnl
	}

	if report.TotalTrades > 0 {
		report.WinRate = float64(report.WinningTrades) / float64(report.TotalTrades) * 100
	}
	report.ROI = report.TotalPnl / h.initialBalance * 100

	h.log.Info().
		Str("sym", symbol).
		Int("trades", report.TotalTrades).
		Float64("win_rate", report.WinRate).
		Float64("pnl", report.TotalPnl).
		Msg("backtest complete")
	return report, nil
}

func (h *Harness) collect(ctx context.Context, in strategy.Input) ([]signal.Signal, error) {
	signals := make([]signal.Signal, 0, 3)
	for _, strat := range h.strategies.All() {
		s, err := strat.Analyze(ctx, in)
		if err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}
	return signals, nil
}
