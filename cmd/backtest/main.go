package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hybridbot/internal/backtest"
	"hybridbot/internal/config"
	"hybridbot/internal/exchange"
	"hybridbot/internal/market"
	"hybridbot/internal/predictor"
	"hybridbot/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	symbol := flag.String("symbol", "BTCUSDT", "instrument to replay")
	days := flag.Int("days", 30, "history depth in days")
	balance := flag.Float64("balance", 10000, "starting balance for ROI reporting")
	flag.Parse()

	_ = godotenv.Load()

	log := util.NewLogger("info")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel)

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bybit := exchange.NewBybit(cfg.Exchange.BaseURL, cfg.Exchange.Category, "", "", log)

	interval := 5
	bars := *days * 24 * 60 / interval
	if bars > 1000 {
		bars = 1000 // kline endpoint page limit
	}
	candles, err := bybit.GetCandles(ctx, *symbol, cfg.Exchange.Timeframe, bars)
	if err != nil {
		log.Fatal().Err(err).Str("sym", *symbol).Msg("fetch history")
	}
	log.Info().Int("bars", len(candles)).Str("sym", *symbol).Msg("history loaded")

	pred := predictor.New(cfg.Predictor.BaseURL, time.Duration(cfg.Predictor.TimeoutSecs)*time.Second, log)
	book, err := bybit.GetOrderBook(ctx, *symbol, 25)
	if err != nil {
		log.Warn().Err(err).Msg("order book unavailable, microstructure stays flat")
		book = market.OrderBook{Symbol: *symbol}
	}

	harness := backtest.New(cfg, pred, book, *balance, log)
	report, err := harness.Run(ctx, *symbol, candles)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	log.Info().
		Int("trades", report.TotalTrades).
		Int("wins", report.WinningTrades).
		Int("losses", report.LosingTrades).
		Float64("win_rate_pct", report.WinRate).
		Float64("total_pnl", report.TotalPnl).
		Float64("roi_pct", report.ROI).
		Msg("backtest results")
}
