package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hybridbot/internal/config"
	"hybridbot/internal/market"
	"hybridbot/internal/signal"
)

func testConfig() *config.Config {
	return &config.Config{
		Exchange: config.Exchange{Timeframe: "5"},
		Universe: config.Universe{MinVolumeUSD: 0, SkipTopN: 0, Count: 100, RefreshIntervalSecs: 3600},
		Weights:  config.Weights{Predictor: 1.0},
		Risk: config.Risk{
			BaseSizeUSD:         100,
			Leverage:            1,
			MaxPositions:        5,
			MaxTradesPerDay:     20,
			CooldownSecs:        0,
			StopLossPct:         2,
			TakeProfitPct:       5,
			ConfidenceThreshold: 0.65,
		},
		Strategy: config.Strategy{
			LookbackBars:       30,
			BandPeriod:         20,
			BandMult:           2,
			RSIPeriod:          14,
			SpreadThresholdPct: 0.05,
			ImbalanceThreshold: 0.6,
		},
		Predictor: config.Predictor{RetrainIntervalMins: 240, RetrainSymbols: 5, TimeoutSecs: 1},
		Engine: config.Engine{
			CycleIntervalSecs:     60,
			InstrumentTimeoutSecs: 5,
			AnalysisWorkers:       4,
			MaxEntriesPerCycle:    20,
		},
	}
}

func symbols(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("SYM%02dUSDT", i)
	}
	return out
}

func newTestEngine(cfg *config.Config, syms []string, pred market.Predictor) (*Engine, *market.StubExecution) {
	exec := market.NewStubExecution(zerolog.Nop(), 100000)
	eng := New(cfg, market.StubData{}, exec, pred, market.StubUniverse{Symbols: syms}, zerolog.Nop())
	eng.SetUniverse(syms)
	return eng, exec
}

func TestCycleCapsEntriesAtMaxPositions(t *testing.T) {
	cfg := testConfig()
	pred := &market.StubPredictor{Ready: true, Raw: 0.95}
	eng, _ := newTestEngine(cfg, symbols(15), pred)

	stats := eng.RunCycle(context.Background())

	if stats.Decisions != 15 {
		t.Fatalf("expected 15 tradable decisions, got %d", stats.Decisions)
	}
	if stats.Entries != 5 {
		t.Fatalf("expected exactly 5 entries at the position cap, got %d", stats.Entries)
	}
	if stats.Rejections != 10 {
		t.Fatalf("expected 10 cap rejections, got %d", stats.Rejections)
	}
	if stats.OpenPositions != 5 {
		t.Fatalf("expected 5 open positions, got %d", stats.OpenPositions)
	}
}

func TestCycleRespectsMaxEntriesPerCycle(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MaxPositions = 50
	cfg.Engine.MaxEntriesPerCycle = 3
	pred := &market.StubPredictor{Ready: true, Raw: 0.95}
	eng, _ := newTestEngine(cfg, symbols(15), pred)

	stats := eng.RunCycle(context.Background())
	if stats.Entries != 3 {
		t.Fatalf("expected 3 ranked entries, got %d", stats.Entries)
	}
	if stats.Rejections != 0 {
		t.Fatalf("candidates beyond the per-cycle bound are not rejections, got %d", stats.Rejections)
	}
}

func TestCycleWarmingPredictorProducesNoEntries(t *testing.T) {
	cfg := testConfig()
	pred := &market.StubPredictor{Ready: false}
	eng, _ := newTestEngine(cfg, symbols(5), pred)

	stats := eng.RunCycle(context.Background())
	if stats.Analyzed != 5 {
		t.Fatalf("warm-up must not skip instruments, analyzed=%d", stats.Analyzed)
	}
	if stats.Decisions != 0 || stats.Entries != 0 {
		t.Fatalf("expected no tradable decisions while warming up, got %+v", stats)
	}
}

type failingData struct{}

func (failingData) GetCandles(context.Context, string, string, int) (market.CandleWindow, error) {
	return nil, fmt.Errorf("exchange unavailable")
}

func (failingData) GetOrderBook(context.Context, string, int) (market.OrderBook, error) {
	return market.OrderBook{}, fmt.Errorf("exchange unavailable")
}

func (failingData) GetTicker(context.Context, string) (market.Ticker, error) {
	return market.Ticker{}, fmt.Errorf("exchange unavailable")
}

func TestCycleSurvivesCapabilityFailures(t *testing.T) {
	cfg := testConfig()
	exec := market.NewStubExecution(zerolog.Nop(), 100000)
	pred := &market.StubPredictor{Ready: true, Raw: 0.95}
	eng := New(cfg, failingData{}, exec, pred, market.StubUniverse{Symbols: symbols(5)}, zerolog.Nop())
	eng.SetUniverse(symbols(5))

	stats := eng.RunCycle(context.Background())
	if stats.Skipped != 5 {
		t.Fatalf("expected all instruments skipped, got %+v", stats)
	}
	if stats.Entries != 0 {
		t.Fatalf("failed fetches must not produce entries")
	}
}

func TestCycleMonitorsBeforeEntering(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MaxPositions = 1
	pred := &market.StubPredictor{Ready: true, Raw: 0.95}
	eng, exec := newTestEngine(cfg, symbols(3), pred)

	first := eng.RunCycle(context.Background())
	if first.Entries != 1 {
		t.Fatalf("expected 1 entry in first cycle, got %d", first.Entries)
	}

	// Breach the stop so the monitoring pass frees the slot before the
	// next cycle's admission checks run.
	open, _ := eng.riskMgr.Snapshot()
	exec.SetPnl(open[0].Symbol, -30, -0.03)

	second := eng.RunCycle(context.Background())
	if second.Closed != 1 {
		t.Fatalf("expected monitoring to close the breached position, got %d", second.Closed)
	}
	if second.Entries != 1 {
		t.Fatalf("expected freed slot to admit a new entry, got %d", second.Entries)
	}
	if eng.riskMgr.OpenCount() != 1 {
		t.Fatalf("position cap violated: %d open", eng.riskMgr.OpenCount())
	}
}

func TestRetrainTriggeredAfterInterval(t *testing.T) {
	cfg := testConfig()
	pred := &market.StubPredictor{Ready: true, Raw: 0.95}
	eng, _ := newTestEngine(cfg, symbols(3), pred)

	eng.lastRetrain = time.Now().Add(-5 * time.Hour)
	eng.RunCycle(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for pred.Retrains() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("retrain request never reached the predictor")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type fixedPrices struct{ price float64 }

func (f fixedPrices) LastPrice(string) (float64, bool) { return f.price, true }

func TestCyclePrefersStreamedPrices(t *testing.T) {
	cfg := testConfig()
	pred := &market.StubPredictor{Ready: true, Raw: 0.95}
	eng, _ := newTestEngine(cfg, symbols(2), pred)
	eng.SetPriceCache(fixedPrices{price: 123})

	stats := eng.RunCycle(context.Background())
	if stats.Entries == 0 {
		t.Fatalf("expected entries, got %+v", stats)
	}
	open, _ := eng.riskMgr.Snapshot()
	for _, pos := range open {
		if pos.EntryPrice != 123 {
			t.Fatalf("expected streamed price 123 as entry, got %v", pos.EntryPrice)
		}
	}
}

func TestDecisionsSnapshotExposed(t *testing.T) {
	cfg := testConfig()
	pred := &market.StubPredictor{Ready: true, Raw: 0.95}
	eng, _ := newTestEngine(cfg, symbols(4), pred)

	eng.RunCycle(context.Background())

	decisions := eng.Decisions()
	if len(decisions) != 4 {
		t.Fatalf("expected 4 decision records, got %d", len(decisions))
	}
	for _, d := range decisions {
		if d.Direction != signal.Buy {
			t.Fatalf("expected BUY decisions from the bullish stub, got %s", d.Direction)
		}
	}
}
