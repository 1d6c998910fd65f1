package fusion

import (
	"math"
	"testing"

	"hybridbot/internal/config"
	"hybridbot/internal/signal"
)

var defaultWeights = config.Weights{Predictor: 0.60, MeanReversion: 0.25, Microstructure: 0.15}

func sig(source signal.Source, dir signal.Direction, conf float64) signal.Signal {
	return signal.Signal{Source: source, Direction: dir, Confidence: conf}
}

func TestFuseWinningSideIsExactWeightedSum(t *testing.T) {
	signals := []signal.Signal{
		sig(signal.SourcePredictor, signal.Buy, 0.9),
		sig(signal.SourceMeanReversion, signal.Buy, 0.5),
		sig(signal.SourceMicrostructure, signal.Sell, 0.4),
	}
	decision := Fuse("BTCUSDT", signals, defaultWeights, 0.3)

	want := 0.9*0.60 + 0.5*0.25
	if decision.Direction != signal.Buy {
		t.Fatalf("expected BUY, got %s", decision.Direction)
	}
	if math.Abs(decision.Confidence-want) > 1e-12 {
		t.Fatalf("expected confidence %v, got %v", want, decision.Confidence)
	}
}

func TestFuseOnlyWinningSideContributes(t *testing.T) {
	// The opposing microstructure signal must not leak into the winner's
	// confidence.
	with := Fuse("X", []signal.Signal{
		sig(signal.SourcePredictor, signal.Buy, 0.8),
		sig(signal.SourceMicrostructure, signal.Sell, 0.7),
	}, defaultWeights, 0.3)
	without := Fuse("X", []signal.Signal{
		sig(signal.SourcePredictor, signal.Buy, 0.8),
	}, defaultWeights, 0.3)

	if with.Confidence != without.Confidence {
		t.Fatalf("opposing signal changed winner confidence: %v vs %v", with.Confidence, without.Confidence)
	}
}

func TestFuseClipsToOne(t *testing.T) {
	// Deliberately over-massed weights to force a sum above 1.
	decision := Fuse("X", []signal.Signal{
		sig(signal.SourcePredictor, signal.Buy, 1.0),
		sig(signal.SourceMeanReversion, signal.Buy, 1.0),
		sig(signal.SourceMicrostructure, signal.Buy, 1.0),
	}, config.Weights{Predictor: 0.6, MeanReversion: 0.3, Microstructure: 0.3}, 0.5)
	if decision.Confidence != 1.0 {
		t.Fatalf("expected clip at exactly 1.0, got %v", decision.Confidence)
	}
}

func TestFuseTieYieldsNone(t *testing.T) {
	decision := Fuse("X", []signal.Signal{
		sig(signal.SourcePredictor, signal.Buy, 0.5),
		sig(signal.SourcePredictor, signal.Sell, 0.5),
	}, defaultWeights, 0.1)
	if decision.Direction != signal.None {
		t.Fatalf("expected NONE on exact tie, got %s", decision.Direction)
	}
}

func TestFuseSubThresholdYieldsNone(t *testing.T) {
	decision := Fuse("X", []signal.Signal{
		sig(signal.SourcePredictor, signal.Buy, 0.5),
	}, defaultWeights, 0.65)
	if decision.Direction != signal.None {
		t.Fatalf("expected NONE below threshold, got %s", decision.Direction)
	}
	want := 0.5 * 0.60
	if math.Abs(decision.Confidence-want) > 1e-12 {
		t.Fatalf("expected reported confidence %v, got %v", want, decision.Confidence)
	}
}

func TestFuseFlatSignalsIgnored(t *testing.T) {
	decision := Fuse("X", []signal.Signal{
		sig(signal.SourcePredictor, signal.None, 0),
		sig(signal.SourceMeanReversion, signal.None, 0),
		sig(signal.SourceMicrostructure, signal.None, 0),
	}, defaultWeights, 0.1)
	if decision.Direction != signal.None || decision.Confidence != 0 {
		t.Fatalf("expected flat decision, got %+v", decision)
	}
}

func TestFuseWeightedSumProperty(t *testing.T) {
	weightSets := []config.Weights{
		{Predictor: 0.60, MeanReversion: 0.25, Microstructure: 0.15},
		{Predictor: 1.0 / 3, MeanReversion: 1.0 / 3, Microstructure: 1.0 / 3},
		{Predictor: 1.0, MeanReversion: 0, Microstructure: 0},
		{Predictor: 0, MeanReversion: 0.5, Microstructure: 0.5},
	}
	confs := []float64{0, 0.1, 0.35, 0.8, 1.0}

	for _, weights := range weightSets {
		for _, pc := range confs {
			for _, mc := range confs {
				signals := []signal.Signal{
					sig(signal.SourcePredictor, signal.Buy, pc),
					sig(signal.SourceMeanReversion, signal.Buy, mc),
				}
				decision := Fuse("X", signals, weights, 0)
				want := math.Min(1.0, pc*weights.Predictor+mc*weights.MeanReversion)
				if decision.Direction == signal.Buy && math.Abs(decision.Confidence-want) > 1e-12 {
					t.Fatalf("weights %+v confs (%v,%v): expected %v, got %v",
						weights, pc, mc, want, decision.Confidence)
				}
			}
		}
	}
}

func TestFuseCopiesComponents(t *testing.T) {
	signals := []signal.Signal{sig(signal.SourcePredictor, signal.Buy, 0.9)}
	decision := Fuse("X", signals, defaultWeights, 0.1)
	signals[0].Confidence = 0
	if decision.Components[0].Confidence != 0.9 {
		t.Fatalf("components aliased caller slice")
	}
}
