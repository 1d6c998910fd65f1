package strategy

import (
	"context"
	"fmt"
	"math"

	"hybridbot/internal/market"
	"hybridbot/internal/signal"
)

const (
	topLevels        = 5
	proximityPct     = 0.5  // distance to a volume wall that counts as near
	proximityBonus   = 0.15 // confidence added for nearby support/resistance
	imbalanceConfCap = 0.8
)

// Microstructure reads the order book: it refuses wide-spread markets and
// signals the side whose resting volume dominates the top of book.
type Microstructure struct {
	spreadThresholdPct float64
	imbalanceThreshold float64
}

// NewMicrostructure builds the analyzer with the default 0.05% spread gate
// and 0.6 imbalance threshold when parameters are zero.
func NewMicrostructure(spreadThresholdPct, imbalanceThreshold float64) *Microstructure {
	if spreadThresholdPct <= 0 {
		spreadThresholdPct = 0.05
	}
	if imbalanceThreshold <= 0 {
		imbalanceThreshold = 0.6
	}
	return &Microstructure{spreadThresholdPct: spreadThresholdPct, imbalanceThreshold: imbalanceThreshold}
}

// Name returns the identifier used in logs.
func (m *Microstructure) Name() string { return "Microstructure" }

// Analyze inspects the depth snapshot. The signal side is the one whose
// top-5-level volume share exceeds the imbalance threshold, confidence
// min(0.8, |imbalance|), plus a proximity bonus when the largest opposing
// volume level sits within 0.5% of the last price.
func (m *Microstructure) Analyze(_ context.Context, in Input) (signal.Signal, error) {
	book := in.Book
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return flat(signal.SourceMicrostructure, "empty order book"), nil
	}
	if in.LastPrice <= 0 {
		return flat(signal.SourceMicrostructure, "no reference price"), nil
	}

	spread := (book.Asks[0].Price - book.Bids[0].Price) / in.LastPrice * 100
	if spread > m.spreadThresholdPct {
		return flat(signal.SourceMicrostructure, fmt.Sprintf("spread too wide: %.3f%%", spread)), nil
	}

	bidPower := sideVolume(book.Bids, topLevels)
	askPower := sideVolume(book.Asks, topLevels)
	total := bidPower + askPower
	if total == 0 {
		return flat(signal.SourceMicrostructure, "no volume at top levels"), nil
	}

	buyerShare := bidPower / total
	sellerShare := askPower / total
	imbalance := math.Abs(buyerShare - sellerShare)

	var sig signal.Signal
	switch {
	case buyerShare > m.imbalanceThreshold:
		sig = signal.Signal{
			Source: signal.SourceMicrostructure, Direction: signal.Buy,
			Confidence: math.Min(imbalanceConfCap, imbalance),
			Rationale:  fmt.Sprintf("buyers hold %.1f%% of top volume", buyerShare*100),
		}
	case sellerShare > m.imbalanceThreshold:
		sig = signal.Signal{
			Source: signal.SourceMicrostructure, Direction: signal.Sell,
			Confidence: math.Min(imbalanceConfCap, imbalance),
			Rationale:  fmt.Sprintf("sellers hold %.1f%% of top volume", sellerShare*100),
		}
	default:
		sig = flat(signal.SourceMicrostructure, "book balanced")
	}

	switch nearestWall(book, in.LastPrice) {
	case signal.Buy: // support below price
		if sig.Direction != signal.Sell {
			sig.Confidence = math.Min(1.0, sig.Confidence+proximityBonus)
			sig.Rationale += " (support nearby)"
		}
	case signal.Sell: // resistance above price
		if sig.Direction != signal.Buy {
			sig.Confidence = math.Min(1.0, sig.Confidence+proximityBonus)
			sig.Rationale += " (resistance nearby)"
		}
	}

	return sig, nil
}

func sideVolume(levels []market.Level, n int) float64 {
	if len(levels) < n {
		n = len(levels)
	}
	var total float64
	for _, lv := range levels[:n] {
		total += lv.Size
	}
	return total
}

// nearestWall reports Buy when the largest bid-side volume level forms
// support just under the price, Sell when the largest ask-side level forms
// resistance just over it, None otherwise.
func nearestWall(book market.OrderBook, price float64) signal.Direction {
	if level, ok := maxVolumeLevel(book.Bids); ok && level.Price < price {
		if (price-level.Price)/price*100 < proximityPct {
			return signal.Buy
		}
	}
	if level, ok := maxVolumeLevel(book.Asks); ok && level.Price > price {
		if (level.Price-price)/price*100 < proximityPct {
			return signal.Sell
		}
	}
	return signal.None
}

func maxVolumeLevel(levels []market.Level) (market.Level, bool) {
	if len(levels) == 0 {
		return market.Level{}, false
	}
	best := levels[0]
	for _, lv := range levels[1:] {
		if lv.Size > best.Size {
			best = lv
		}
	}
	return best, true
}
