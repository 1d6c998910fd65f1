package strategy

import (
	"hybridbot/internal/config"
	"hybridbot/internal/market"
)

// Set is the closed group of analyzers the engine runs on every instrument,
// in fusion order: predictor, mean reversion, microstructure.
type Set struct {
	Predictor      *PredictorAdapter
	MeanReversion  *MeanReversion
	Microstructure *Microstructure
}

// Build constructs the analyzer set from configuration.
func Build(cfg config.Strategy, lookback int, predictor market.Predictor) Set {
	return Set{
		Predictor:      NewPredictorAdapter(predictor, lookback),
		MeanReversion:  NewMeanReversion(cfg.BandPeriod, cfg.BandMult, cfg.RSIPeriod),
		Microstructure: NewMicrostructure(cfg.SpreadThresholdPct, cfg.ImbalanceThreshold),
	}
}

// All returns the analyzers as the shared interface for uniform invocation.
func (s Set) All() []Strategy {
	return []Strategy{s.Predictor, s.MeanReversion, s.Microstructure}
}
