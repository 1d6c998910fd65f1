// Package strategy contains the three analyzers whose weighted votes drive
// trade decisions: mean reversion, order-book microstructure, and the
// directional predictor adapter.
package strategy

import (
	"context"

	"hybridbot/internal/market"
	"hybridbot/internal/signal"
)

// Input bundles the market state one analysis call sees. Window is always
// populated; Book and LastPrice are used by the microstructure analyzer.
type Input struct {
	Symbol    string
	Window    market.CandleWindow
	Book      market.OrderBook
	LastPrice float64
}

// Strategy defines behaviour shared by the analyzer implementations. The
// set is closed: analyzers are weighted by configuration, not discovered at
// runtime.
type Strategy interface {
	Analyze(ctx context.Context, in Input) (signal.Signal, error)
	Name() string
}

// flat builds a no-bias signal with an explanatory rationale.
func flat(source signal.Source, rationale string) signal.Signal {
	return signal.Signal{Source: source, Direction: signal.None, Confidence: 0, Rationale: rationale}
}
