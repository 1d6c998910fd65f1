package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"

	"hybridbot/internal/indicator"
	"hybridbot/internal/market"
	"hybridbot/internal/signal"
)

// PredictorAdapter wraps the external directional model behind the shared
// analyzer contract. The model stays a black box: the adapter only
// normalizes its [0,1] forecast into a direction and confidence.
type PredictorAdapter struct {
	predictor market.Predictor
	lookback  int
}

// NewPredictorAdapter wires the capability with the window length the model
// expects (default 100 bars).
func NewPredictorAdapter(p market.Predictor, lookback int) *PredictorAdapter {
	if lookback <= 0 {
		lookback = 100
	}
	return &PredictorAdapter{predictor: p, lookback: lookback}
}

// Name returns the identifier used in logs.
func (a *PredictorAdapter) Name() string { return "Predictor" }

// RequiredLookback reports the minimum window length Analyze accepts.
func (a *PredictorAdapter) RequiredLookback() int { return a.lookback }

// Analyze asks the model for a forecast. A warm-up model (not ready)
// degrades to a flat signal so one slow trainer never fails a cycle;
// genuine capability errors propagate for the caller to log and skip.
func (a *PredictorAdapter) Analyze(ctx context.Context, in Input) (signal.Signal, error) {
	if len(in.Window) < a.lookback {
		return signal.Signal{}, fmt.Errorf("predictor window %d < lookback %d: %w",
			len(in.Window), a.lookback, indicator.ErrInsufficientData)
	}

	pred, err := a.predictor.Predict(ctx, in.Window)
	if err != nil {
		if errors.Is(err, market.ErrNotReady) {
			return flat(signal.SourcePredictor, "model warming up"), nil
		}
		return signal.Signal{}, fmt.Errorf("predict %s: %w", in.Symbol, err)
	}

	dir := signal.Sell
	if pred.Direction == 1 {
		dir = signal.Buy
	}
	conf := pred.Confidence
	if conf == 0 {
		conf = math.Max(pred.Raw, 1-pred.Raw)
	}
	return signal.Signal{
		Source:     signal.SourcePredictor,
		Direction:  dir,
		Confidence: conf,
		Rationale:  fmt.Sprintf("model forecast %.3f", pred.Raw),
	}, nil
}
