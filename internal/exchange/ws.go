package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// TickerStream maintains a last-price cache fed by the Bybit public
// websocket, so the monitoring pass can mark positions between candle
// fetches without an extra REST round trip per symbol.
type TickerStream struct {
	url     string
	symbols []string
	log     zerolog.Logger

	mu         sync.RWMutex
	lastPrices map[string]float64
}

// NewTickerStream builds a stream for the given public endpoint and symbols.
func NewTickerStream(url string, symbols []string, log zerolog.Logger) *TickerStream {
	return &TickerStream{
		url:        url,
		symbols:    symbols,
		log:        log.With().Str("component", "ticker_stream").Logger(),
		lastPrices: make(map[string]float64),
	}
}

// LastPrice returns the most recent streamed price, ok false before the
// first tick for the symbol.
func (s *TickerStream) LastPrice(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.lastPrices[symbol]
	return price, ok
}

// Run connects and consumes ticker events until the context is cancelled,
// reconnecting with capped exponential backoff on disconnects.
func (s *TickerStream) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn().Err(err).Msg("ticker stream disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

type wsSubscribe struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type wsEvent struct {
	Topic string `json:"topic"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

func (s *TickerStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		args[i] = "tickers." + sym
	}
	if err := conn.WriteJSON(wsSubscribe{Op: "subscribe", Args: args}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info().Int("symbols", len(s.symbols)).Msg("ticker stream connected")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()

	// ReadMessage only unblocks on a closed conn, so shutdown rides on the
	// same cancellation as the ping loop.
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(wsSubscribe{Op: "ping"}); err != nil {
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		var event wsEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}
		if event.Data.Symbol == "" || event.Data.LastPrice == "" {
			continue
		}
		price := parseFloat(event.Data.LastPrice)
		if price <= 0 {
			continue
		}
		s.mu.Lock()
		s.lastPrices[event.Data.Symbol] = price
		s.mu.Unlock()
	}
}
