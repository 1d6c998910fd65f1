// Package fusion combines the weighted analyzer signals into one decision
// per instrument. Fuse is pure and deterministic: all decision logic lives
// here and nowhere else.
package fusion

import (
	"math"

	"hybridbot/internal/config"
	"hybridbot/internal/signal"
)

// Decision is the fused outcome for one instrument. Confidence is the
// weighted sum of the component confidences agreeing with the winning
// side, clipped to 1.0; for a None decision it reports the stronger side's
// sub-threshold mass.
type Decision struct {
	Symbol     string
	Direction  signal.Direction
	Confidence float64
	Components []signal.Signal
}

// Fuse computes per-side weighted confidence sums and picks the side that
// is strictly stronger than the other and above the threshold. Ties and
// sub-threshold results yield a None decision.
func Fuse(symbol string, signals []signal.Signal, weights config.Weights, threshold float64) Decision {
	var buy, sell float64
	for _, s := range signals {
		w := sourceWeight(weights, s.Source)
		switch s.Direction {
		case signal.Buy:
			buy += s.Confidence * w
		case signal.Sell:
			sell += s.Confidence * w
		}
	}

	components := make([]signal.Signal, len(signals))
	copy(components, signals)

	decision := Decision{Symbol: symbol, Direction: signal.None, Components: components}
	switch {
	case buy > sell && buy > threshold:
		decision.Direction = signal.Buy
		decision.Confidence = math.Min(1.0, buy)
	case sell > buy && sell > threshold:
		decision.Direction = signal.Sell
		decision.Confidence = math.Min(1.0, sell)
	default:
		decision.Confidence = math.Min(1.0, math.Max(buy, sell))
	}
	return decision
}

func sourceWeight(weights config.Weights, source signal.Source) float64 {
	switch source {
	case signal.SourcePredictor:
		return weights.Predictor
	case signal.SourceMeanReversion:
		return weights.MeanReversion
	case signal.SourceMicrostructure:
		return weights.Microstructure
	default:
		return 0
	}
}
