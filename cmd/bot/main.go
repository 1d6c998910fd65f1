package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hybridbot/internal/config"
	"hybridbot/internal/engine"
	"hybridbot/internal/exchange"
	"hybridbot/internal/market"
	"hybridbot/internal/metrics"
	"hybridbot/internal/predictor"
	"hybridbot/internal/server"
	"hybridbot/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	paper := flag.Bool("paper", false, "run against stub market data and execution")
	flag.Parse()

	_ = godotenv.Load()

	log := util.NewLogger("info")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pred := predictor.New(cfg.Predictor.BaseURL, time.Duration(cfg.Predictor.TimeoutSecs)*time.Second, log)

	var (
		data   market.Data
		exec   market.Execution
		uni    market.Universe
		stream *exchange.TickerStream
	)
	if *paper {
		stubExec := market.NewStubExecution(log, 10000)
		data = market.StubData{}
		exec = stubExec
		uni = market.StubUniverse{Symbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}}
		log.Info().Msg("paper mode: stub market data and execution")
	} else {
		bybit := exchange.NewBybit(cfg.Exchange.BaseURL, cfg.Exchange.Category,
			cfg.Exchange.APIKey, cfg.Exchange.APISecret, log)
		data = bybit
		exec = bybit
		uni = bybit

		symbols, err := bybit.GetInstruments(ctx, cfg.Universe.MinVolumeUSD, cfg.Universe.SkipTopN, cfg.Universe.Count)
		if err != nil {
			log.Warn().Err(err).Msg("initial universe fetch failed, ticker stream disabled")
		} else {
			stream = exchange.NewTickerStream(cfg.Exchange.WSURL, symbols, log)
			go func() {
				if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn().Err(err).Msg("ticker stream stopped")
				}
			}()
		}
	}

	eng := engine.New(cfg, data, exec, pred, uni, log)
	if stream != nil {
		eng.SetPriceCache(stream)
	}

	api := server.New(eng, log)
	go func() {
		if err := api.Start(ctx, cfg.App.StatusAddr); err != nil {
			log.Error().Err(err).Msg("status api stopped")
			cancel()
		}
	}()

	log.Info().Str("env", cfg.App.Env).Msg("engine started")
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("engine stopped")
	}
	log.Info().Msg("shutdown complete")
}
