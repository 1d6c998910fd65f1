// Package predictor talks to the external directional model service over
// HTTP. The engine treats the model as a black box: predictions come back
// as a [0,1] forecast, retraining is fire-and-forget, and a warm-up model
// is reported as not ready rather than as a failure.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"hybridbot/internal/market"
)

// Client implements market.Predictor against the model service API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// New builds a client for the service at baseURL with a per-call timeout.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "predictor").Logger(),
	}
}

type candlePayload struct {
	Start  int64   `json:"start"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type predictRequest struct {
	Candles []candlePayload `json:"candles"`
}

type predictResponse struct {
	Ready      bool    `json:"ready"`
	Direction  int     `json:"direction"`
	Confidence float64 `json:"confidence"`
	Raw        float64 `json:"raw_prediction"`
}

// Predict posts the candle window and decodes the forecast. A service that
// reports itself untrained maps to market.ErrNotReady.
func (c *Client) Predict(ctx context.Context, window market.CandleWindow) (market.Prediction, error) {
	req := predictRequest{Candles: encodeWindow(window)}
	var resp predictResponse
	if err := c.post(ctx, "/predict", req, &resp); err != nil {
		return market.Prediction{}, err
	}
	if !resp.Ready {
		return market.Prediction{}, market.ErrNotReady
	}
	return market.Prediction{Direction: resp.Direction, Confidence: resp.Confidence, Raw: resp.Raw}, nil
}

type retrainRequest struct {
	Windows [][]candlePayload `json:"windows"`
}

// RequestRetrain submits training windows and returns as soon as the
// service has accepted the job; the engine never waits on training.
func (c *Client) RequestRetrain(ctx context.Context, windows []market.CandleWindow) error {
	req := retrainRequest{Windows: make([][]candlePayload, len(windows))}
	for i, w := range windows {
		req.Windows[i] = encodeWindow(w)
	}
	if err := c.post(ctx, "/retrain", req, nil); err != nil {
		return err
	}
	c.log.Info().Int("windows", len(windows)).Msg("retrain accepted")
	return nil
}

// Ready polls the service readiness endpoint.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return false, fmt.Errorf("build ready request: %w", err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("ready: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func encodeWindow(window market.CandleWindow) []candlePayload {
	out := make([]candlePayload, len(window))
	for i, c := range window {
		out[i] = candlePayload{
			Start: c.Start.UnixMilli(),
			Open:  c.Open, High: c.High, Low: c.Low, Close: c.Close,
			Volume: c.Volume,
		}
	}
	return out
}
