// Package signal standardizes payloads shared between strategies and fusion.
package signal

// Direction expresses the trading bias carried by a signal or decision.
type Direction string

const (
	None Direction = "NONE"
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the other tradable side; None maps to None.
func (d Direction) Opposite() Direction {
	switch d {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return None
	}
}

// Source identifies which analyzer produced a signal.
type Source string

const (
	SourcePredictor      Source = "predictor"
	SourceMeanReversion  Source = "mean_reversion"
	SourceMicrostructure Source = "microstructure"
)

// Signal expresses one analyzer's view of an instrument.
// Confidence is normalized to [0,1]; Rationale is a human-readable trace
// of why the analyzer picked this side.
type Signal struct {
	Source     Source
	Direction  Direction
	Confidence float64
	Rationale  string
}

// Flat reports whether the signal carries no tradable bias.
func (s Signal) Flat() bool {
	return s.Direction == None || s.Confidence == 0
}
