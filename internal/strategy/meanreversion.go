package strategy

import (
	"context"
	"fmt"
	"math"

	"hybridbot/internal/indicator"
	"hybridbot/internal/signal"
)

// MeanReversion expects price to revert to its moving average after
// stretching past a standard-deviation envelope, with the RSI oscillator
// confirming exhaustion.
type MeanReversion struct {
	bandPeriod int
	bandMult   float64
	rsiPeriod  int
}

// NewMeanReversion builds the analyzer, backfilling zero parameters with
// the classic 20-period/2-sigma bands and 14-period RSI.
func NewMeanReversion(bandPeriod int, bandMult float64, rsiPeriod int) *MeanReversion {
	if bandPeriod <= 1 {
		bandPeriod = 20
	}
	if bandMult <= 0 {
		bandMult = 2
	}
	if rsiPeriod <= 0 {
		rsiPeriod = 14
	}
	return &MeanReversion{bandPeriod: bandPeriod, bandMult: bandMult, rsiPeriod: rsiPeriod}
}

// Name returns the identifier used in logs.
func (m *MeanReversion) Name() string { return "MeanReversion" }

// RequiredLookback reports the minimum window length Analyze accepts.
func (m *MeanReversion) RequiredLookback() int {
	if m.bandPeriod > m.rsiPeriod+1 {
		return m.bandPeriod
	}
	return m.rsiPeriod + 1
}

// Analyze maps the window onto a contrarian signal. Price beyond a band
// signals the reverting side with confidence scaled by the deviation from
// the average (capped at 0.8) and boosted 0.2 when RSI confirms; prices
// near a band edge with a confirming RSI extreme yield a weak 0.3 signal.
func (m *MeanReversion) Analyze(_ context.Context, in Input) (signal.Signal, error) {
	closes := in.Window.Closes()
	if len(closes) < m.RequiredLookback() {
		return signal.Signal{}, indicator.ErrInsufficientData
	}

	bands, err := indicator.BollingerBands(closes, m.bandPeriod, m.bandMult)
	if err != nil {
		return signal.Signal{}, err
	}
	rsi, err := indicator.RSI(closes, m.rsiPeriod)
	if err != nil {
		return signal.Signal{}, err
	}

	last := closes[len(closes)-1]
	deviation := 0.0
	if bands.Middle != 0 {
		deviation = (last - bands.Middle) / bands.Middle * 100
	}

	switch {
	case last > bands.Upper:
		conf := math.Min(0.8, math.Abs(deviation)/5)
		rationale := fmt.Sprintf("price %.2f%% above mean, over upper band", math.Abs(deviation))
		if rsi > 70 {
			conf = math.Min(1.0, conf+0.2)
			rationale += fmt.Sprintf(", RSI %.0f overbought", rsi)
		}
		return signal.Signal{Source: signal.SourceMeanReversion, Direction: signal.Sell, Confidence: conf, Rationale: rationale}, nil

	case last < bands.Lower:
		conf := math.Min(0.8, math.Abs(deviation)/5)
		rationale := fmt.Sprintf("price %.2f%% below mean, under lower band", math.Abs(deviation))
		if rsi < 30 {
			conf = math.Min(1.0, conf+0.2)
			rationale += fmt.Sprintf(", RSI %.0f oversold", rsi)
		}
		return signal.Signal{Source: signal.SourceMeanReversion, Direction: signal.Buy, Confidence: conf, Rationale: rationale}, nil

	case math.Abs(deviation) > 2 && rsi > 70:
		return signal.Signal{Source: signal.SourceMeanReversion, Direction: signal.Sell, Confidence: 0.3,
			Rationale: fmt.Sprintf("near upper band, RSI %.0f high", rsi)}, nil

	case math.Abs(deviation) > 2 && rsi < 30:
		return signal.Signal{Source: signal.SourceMeanReversion, Direction: signal.Buy, Confidence: 0.3,
			Rationale: fmt.Sprintf("near lower band, RSI %.0f low", rsi)}, nil
	}

	return flat(signal.SourceMeanReversion, "price near moving average"), nil
}
