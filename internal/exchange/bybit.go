// Package exchange implements the market-data, execution, and universe
// capabilities against the Bybit v5 API.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hybridbot/internal/market"
)

const recvWindow = "5000"

// Bybit is a REST client for the v5 unified API. Public endpoints work
// unsigned; order and account endpoints require API credentials.
type Bybit struct {
	baseURL   string
	category  string
	apiKey    string
	apiSecret string
	http      *http.Client
	log       zerolog.Logger
}

// NewBybit builds a client. Credentials may be empty for read-only use.
func NewBybit(baseURL, category, apiKey, apiSecret string, log zerolog.Logger) *Bybit {
	if category == "" {
		category = "linear"
	}
	return &Bybit{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		category:  category,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("component", "bybit").Logger(),
	}
}

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// GetCandles fetches OHLCV bars. Bybit returns newest-first; the window is
// reversed to most-recent-last before returning.
func (b *Bybit) GetCandles(ctx context.Context, symbol, timeframe string, count int) (market.CandleWindow, error) {
	q := url.Values{}
	q.Set("category", b.category)
	q.Set("symbol", symbol)
	q.Set("interval", timeframe)
	q.Set("limit", strconv.Itoa(count))

	var result struct {
		List [][]string `json:"list"`
	}
	if err := b.get(ctx, "/v5/market/kline", q, false, &result); err != nil {
		return nil, fmt.Errorf("get candles %s: %w", symbol, err)
	}

	window := make(market.CandleWindow, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		if len(row) < 6 {
			continue
		}
		ms, _ := strconv.ParseInt(row[0], 10, 64)
		window = append(window, market.Candle{
			Start:  time.UnixMilli(ms).UTC(),
			Open:   parseFloat(row[1]),
			High:   parseFloat(row[2]),
			Low:    parseFloat(row[3]),
			Close:  parseFloat(row[4]),
			Volume: parseFloat(row[5]),
		})
	}
	return window, nil
}

// GetOrderBook fetches a depth snapshot.
func (b *Bybit) GetOrderBook(ctx context.Context, symbol string, depth int) (market.OrderBook, error) {
	q := url.Values{}
	q.Set("category", b.category)
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(depth))

	var result struct {
		Bids [][]string `json:"b"`
		Asks [][]string `json:"a"`
	}
	if err := b.get(ctx, "/v5/market/orderbook", q, false, &result); err != nil {
		return market.OrderBook{}, fmt.Errorf("get orderbook %s: %w", symbol, err)
	}

	book := market.OrderBook{Symbol: symbol}
	for _, row := range result.Bids {
		if len(row) >= 2 {
			book.Bids = append(book.Bids, market.Level{Price: parseFloat(row[0]), Size: parseFloat(row[1])})
		}
	}
	for _, row := range result.Asks {
		if len(row) >= 2 {
			book.Asks = append(book.Asks, market.Level{Price: parseFloat(row[0]), Size: parseFloat(row[1])})
		}
	}
	return book, nil
}

type tickerRow struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	Bid1Price   string `json:"bid1Price"`
	Ask1Price   string `json:"ask1Price"`
	Turnover24h string `json:"turnover24h"`
}

// GetTicker fetches last price and top of book for one symbol.
func (b *Bybit) GetTicker(ctx context.Context, symbol string) (market.Ticker, error) {
	rows, err := b.tickers(ctx, symbol)
	if err != nil {
		return market.Ticker{}, err
	}
	if len(rows) == 0 {
		return market.Ticker{}, fmt.Errorf("get ticker %s: empty response", symbol)
	}
	t := rows[0]
	return market.Ticker{
		Symbol:    t.Symbol,
		LastPrice: parseFloat(t.LastPrice),
		Bid:       parseFloat(t.Bid1Price),
		Ask:       parseFloat(t.Ask1Price),
	}, nil
}

// GetInstruments selects USDT perpetuals above the volume floor, sorted by
// 24h turnover descending, skipping the very top names and returning at
// most count symbols.
func (b *Bybit) GetInstruments(ctx context.Context, minVolume float64, skipTopN, count int) ([]string, error) {
	rows, err := b.tickers(ctx, "")
	if err != nil {
		return nil, err
	}

	type pair struct {
		symbol   string
		turnover float64
	}
	pairs := make([]pair, 0, len(rows))
	for _, row := range rows {
		turnover := parseFloat(row.Turnover24h)
		if turnover >= minVolume && strings.Contains(row.Symbol, "USDT") {
			pairs = append(pairs, pair{symbol: row.Symbol, turnover: turnover})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].turnover > pairs[j].turnover })

	if skipTopN < len(pairs) {
		pairs = pairs[skipTopN:]
	} else {
		pairs = nil
	}
	if count > 0 && count < len(pairs) {
		pairs = pairs[:count]
	}

	symbols := make([]string, len(pairs))
	for i, p := range pairs {
		symbols[i] = p.symbol
	}
	return symbols, nil
}

func (b *Bybit) tickers(ctx context.Context, symbol string) ([]tickerRow, error) {
	q := url.Values{}
	q.Set("category", b.category)
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	var result struct {
		List []tickerRow `json:"list"`
	}
	if err := b.get(ctx, "/v5/market/tickers", q, false, &result); err != nil {
		return nil, fmt.Errorf("get tickers: %w", err)
	}
	return result.List, nil
}

// PlaceOrder submits an IOC market order.
func (b *Bybit) PlaceOrder(ctx context.Context, symbol string, side market.Side, qty float64) (market.OrderAck, error) {
	body := map[string]any{
		"category":    b.category,
		"symbol":      symbol,
		"side":        orderSide(side),
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(qty, 'f', 4, 64),
		"timeInForce": "IOC",
	}
	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := b.postSigned(ctx, "/v5/order/create", body, &result); err != nil {
		return market.OrderAck{}, fmt.Errorf("place order %s: %w", symbol, err)
	}
	b.log.Info().Str("sym", symbol).Str("side", string(side)).Float64("qty", qty).Str("order_id", result.OrderID).Msg("order placed")
	return market.OrderAck{OrderID: result.OrderID, Symbol: symbol, Side: side, Qty: qty}, nil
}

// ClosePosition unwinds the live position with a reduce-only market order
// on the opposite side.
func (b *Bybit) ClosePosition(ctx context.Context, symbol string) (market.OrderAck, error) {
	live, err := b.GetPosition(ctx, symbol)
	if err != nil {
		return market.OrderAck{}, err
	}
	if live == nil || live.Size == 0 {
		return market.OrderAck{}, fmt.Errorf("close position %s: no open position", symbol)
	}

	side := market.Sell
	qty := live.Size
	if qty < 0 {
		side = market.Buy
		qty = -qty
	}
	body := map[string]any{
		"category":    b.category,
		"symbol":      symbol,
		"side":        orderSide(side),
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(qty, 'f', 4, 64),
		"timeInForce": "IOC",
		"reduceOnly":  true,
	}
	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := b.postSigned(ctx, "/v5/order/create", body, &result); err != nil {
		return market.OrderAck{}, fmt.Errorf("close position %s: %w", symbol, err)
	}
	b.log.Info().Str("sym", symbol).Float64("qty", qty).Msg("position closed on venue")
	return market.OrderAck{OrderID: result.OrderID, Symbol: symbol, Side: side, Qty: qty}, nil
}

// GetPosition returns the venue's open position for the symbol, nil when
// flat. Short positions report a negative size.
func (b *Bybit) GetPosition(ctx context.Context, symbol string) (*market.LivePosition, error) {
	q := url.Values{}
	q.Set("category", b.category)
	q.Set("symbol", symbol)

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			AvgPrice      string `json:"avgPrice"`
			MarkPrice     string `json:"markPrice"`
			UnrealisedPnl string `json:"unrealisedPnl"`
			PositionValue string `json:"positionValue"`
		} `json:"list"`
	}
	if err := b.get(ctx, "/v5/position/list", q, true, &result); err != nil {
		return nil, fmt.Errorf("get position %s: %w", symbol, err)
	}
	if len(result.List) == 0 {
		return nil, nil
	}

	row := result.List[0]
	size := parseFloat(row.Size)
	if size == 0 {
		return nil, nil
	}
	if strings.EqualFold(row.Side, "Sell") {
		size = -size
	}
	pnl := parseFloat(row.UnrealisedPnl)
	value := parseFloat(row.PositionValue)
	var pnlPct float64
	if value != 0 {
		pnlPct = pnl / value
	}
	return &market.LivePosition{
		Symbol:       row.Symbol,
		Size:         size,
		EntryPrice:   parseFloat(row.AvgPrice),
		CurrentPrice: parseFloat(row.MarkPrice),
		Pnl:          pnl,
		PnlPercent:   pnlPct,
	}, nil
}

// GetBalance reports deployable USDT from the unified account.
func (b *Bybit) GetBalance(ctx context.Context) (market.Balance, error) {
	q := url.Values{}
	q.Set("accountType", "UNIFIED")

	var result struct {
		List []struct {
			Coin []struct {
				Coin                string `json:"coin"`
				WalletBalance       string `json:"walletBalance"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := b.get(ctx, "/v5/account/wallet-balance", q, true, &result); err != nil {
		return market.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	for _, acct := range result.List {
		for _, coin := range acct.Coin {
			if coin.Coin == "USDT" {
				return market.Balance{Available: parseFloat(coin.AvailableToWithdraw)}, nil
			}
		}
	}
	return market.Balance{}, nil
}

func (b *Bybit) get(ctx context.Context, path string, q url.Values, signed bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	if signed {
		b.sign(req, q.Encode())
	}
	return b.do(req, out)
}

func (b *Bybit) postSigned(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	b.sign(req, string(payload))
	return b.do(req, out)
}

// sign applies the v5 HMAC headers: the signature covers
// timestamp + apiKey + recvWindow + (query string | body).
func (b *Bybit) sign(req *http.Request, payload string) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(b.apiSecret))
	mac.Write([]byte(ts + b.apiKey + recvWindow + payload))

	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", hex.EncodeToString(mac.Sum(nil)))
}

func (b *Bybit) do(req *http.Request, out any) error {
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.RetCode != 0 {
		return fmt.Errorf("api error %d: %s", env.RetCode, env.RetMsg)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

func orderSide(side market.Side) string {
	if side == market.Sell {
		return "Sell"
	}
	return "Buy"
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
