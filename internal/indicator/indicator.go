// Package indicator provides the pure numeric kernels the strategies are
// built from. Every function is deterministic and side-effect free; inputs
// shorter than the required lookback return ErrInsufficientData instead of
// degenerate values.
package indicator

import (
	"errors"
	"math"
)

// ErrInsufficientData reports an input series shorter than the lookback a
// kernel needs. Callers skip the instrument for the cycle.
var ErrInsufficientData = errors.New("insufficient data for lookback")

// SMA returns the simple moving average of the trailing period values.
func SMA(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period {
		return 0, ErrInsufficientData
	}
	var sum float64
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period), nil
}

// StdDev returns the sample standard deviation of the trailing period values.
func StdDev(prices []float64, period int) (float64, error) {
	if period <= 1 || len(prices) < period {
		return 0, ErrInsufficientData
	}
	window := prices[len(prices)-period:]
	var sum float64
	for _, p := range window {
		sum += p
	}
	mean := sum / float64(period)
	var sq float64
	for _, p := range window {
		d := p - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(period-1)), nil
}

// RSI returns the relative-strength oscillator for the last price using
// Wilder's smoothing: the first period+1 deltas seed the averages, every
// later delta decays them by (period-1)/period.
func RSI(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period+1 {
		return 0, ErrInsufficientData
	}
	var up, down float64
	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta >= 0 {
			up += delta
		} else {
			down -= delta
		}
	}
	up /= float64(period)
	down /= float64(period)

	for i := period + 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		var upval, downval float64
		if delta > 0 {
			upval = delta
		} else {
			downval = -delta
		}
		up = (up*float64(period-1) + upval) / float64(period)
		down = (down*float64(period-1) + downval) / float64(period)
	}

	if down == 0 {
		if up == 0 {
			return 50, nil
		}
		return 100, nil
	}
	rs := up / down
	return 100 - 100/(1+rs), nil
}

// MACDResult carries the last values of the convergence/divergence lines.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes fast/slow EMA convergence with a signal EMA over the macd
// line, using span-style smoothing (alpha = 2/(span+1)).
func MACD(prices []float64, fast, slow, signalSpan int) (MACDResult, error) {
	if fast <= 0 || slow <= fast || signalSpan <= 0 || len(prices) < slow {
		return MACDResult{}, ErrInsufficientData
	}
	fastEMA := emaSeries(prices, fast)
	slowEMA := emaSeries(prices, slow)
	macd := make([]float64, len(prices))
	for i := range prices {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := emaSeries(macd, signalSpan)
	last := len(prices) - 1
	return MACDResult{
		MACD:      macd[last],
		Signal:    signalLine[last],
		Histogram: macd[last] - signalLine[last],
	}, nil
}

func emaSeries(values []float64, span int) []float64 {
	alpha := 2.0 / (float64(span) + 1)
	out := make([]float64, len(values))
	for i, v := range values {
		if i == 0 {
			out[i] = v
			continue
		}
		out[i] = alpha*v + (1-alpha)*out[i-1]
	}
	return out
}

// Bands is a standard-deviation envelope around a moving average.
type Bands struct {
	Middle float64
	Upper  float64
	Lower  float64
}

// BollingerBands returns the envelope at mult standard deviations.
func BollingerBands(prices []float64, period int, mult float64) (Bands, error) {
	mid, err := SMA(prices, period)
	if err != nil {
		return Bands{}, err
	}
	sd, err := StdDev(prices, period)
	if err != nil {
		return Bands{}, err
	}
	return Bands{Middle: mid, Upper: mid + sd*mult, Lower: mid - sd*mult}, nil
}

// BandPosition returns where the last price sits inside the envelope,
// clamped to [0,1]. A zero-width envelope reports the midpoint.
func BandPosition(prices []float64, period int, mult float64) (float64, error) {
	bands, err := BollingerBands(prices, period, mult)
	if err != nil {
		return 0, err
	}
	width := bands.Upper - bands.Lower
	if width == 0 {
		return 0.5, nil
	}
	pos := (prices[len(prices)-1] - bands.Lower) / width
	return Clamp(pos, 0, 1), nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
