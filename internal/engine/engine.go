// Package engine drives the trading loop: one sequential cycle at a time
// over the instrument universe, with analysis fanned out to a bounded
// worker pool and all position mutation funnelled back through the single
// scheduler goroutine.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hybridbot/internal/config"
	"hybridbot/internal/fusion"
	"hybridbot/internal/indicator"
	"hybridbot/internal/market"
	"hybridbot/internal/metrics"
	"hybridbot/internal/risk"
	"hybridbot/internal/signal"
	"hybridbot/internal/strategy"
)

// CycleStats summarizes one scheduler pass. Recomputed every cycle and
// never persisted by the engine itself.
type CycleStats struct {
	Cycle         int           `json:"cycle"`
	Analyzed      int           `json:"analyzed"`
	Skipped       int           `json:"skipped"`
	Signals       int           `json:"signals"`
	Decisions     int           `json:"decisions"`
	Entries       int           `json:"entries"`
	Rejections    int           `json:"rejections"`
	Closed        int           `json:"closed"`
	OpenPositions int           `json:"open_positions"`
	Duration      time.Duration `json:"duration"`
	FinishedAt    time.Time     `json:"finished_at"`
}

// Engine owns the cycle loop state: universe, retrain clock, and the last
// cycle's snapshot for external consumers.
type Engine struct {
	cfg        *config.Config
	data       market.Data
	predictor  market.Predictor
	universe   market.Universe
	prices     market.PriceCache
	strategies strategy.Set
	riskMgr    *risk.Manager
	log        zerolog.Logger
	now        func() time.Time

	symbols         []string
	universeFetched time.Time
	lastRetrain     time.Time
	cycleCount      int

	mu            sync.Mutex
	lastStats     CycleStats
	lastDecisions []fusion.Decision
}

// New wires the engine from its collaborator capabilities.
func New(cfg *config.Config, data market.Data, exec market.Execution, predictor market.Predictor, universe market.Universe, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		data:       data,
		predictor:  predictor,
		universe:   universe,
		strategies: strategy.Build(cfg.Strategy, cfg.Strategy.LookbackBars, predictor),
		riskMgr:    risk.NewManager(cfg.Risk, exec, log),
		log:        log.With().Str("component", "engine").Logger(),
		now:        time.Now,
	}
}

// Risk exposes the manager for snapshot consumers.
func (e *Engine) Risk() *risk.Manager { return e.riskMgr }

// SetPriceCache attaches a streamed price source consulted before falling
// back to REST ticker fetches. Call before Run.
func (e *Engine) SetPriceCache(p market.PriceCache) { e.prices = p }

// analysis is one instrument's outcome funnelled back from the worker pool.
type analysis struct {
	symbol   string
	decision fusion.Decision
	price    float64
	signals  int
	skipped  bool
}

// Run loops cycles until the context is cancelled, sleeping the configured
// interval between passes. A failed cycle waits the same fixed interval
// before the next attempt; that fixed-delay retry is the backoff policy.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := e.refreshUniverse(ctx); err != nil {
			e.log.Error().Err(err).Msg("universe refresh failed")
		}
		if len(e.symbols) > 0 {
			stats := e.RunCycle(ctx)
			e.log.Info().
				Int("analyzed", stats.Analyzed).
				Int("decisions", stats.Decisions).
				Int("entries", stats.Entries).
				Int("open", stats.OpenPositions).
				Dur("took", stats.Duration).
				Msg("cycle complete")
		}

		select {
		case <-ctx.Done():
			e.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-time.After(time.Duration(e.cfg.Engine.CycleIntervalSecs) * time.Second):
		}
	}
}

// RunCycle executes one full pass: monitor open positions, trigger
// retraining when due, analyze the universe, then admit ranked entries.
func (e *Engine) RunCycle(ctx context.Context) CycleStats {
	start := e.now()
	e.cycleCount++
	stats := CycleStats{Cycle: e.cycleCount}

	stats.Closed = e.riskMgr.Monitor(ctx)
	e.maybeRetrain(ctx)

	results := e.analyzeAll(ctx)

	var candidates []analysis
	prices := make(map[string]float64, len(results))
	for _, r := range results {
		if r.skipped {
			stats.Skipped++
			continue
		}
		stats.Analyzed++
		stats.Signals += r.signals
		prices[r.symbol] = r.price
		metrics.DecisionsTotal.WithLabelValues(string(r.decision.Direction)).Inc()
		if r.decision.Direction != signal.None {
			stats.Decisions++
			candidates = append(candidates, r)
		}
	}

	// Ranked admission: highest conviction first, bounded per cycle.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].decision.Confidence > candidates[j].decision.Confidence
	})
	if len(candidates) > e.cfg.Engine.MaxEntriesPerCycle {
		candidates = candidates[:e.cfg.Engine.MaxEntriesPerCycle]
	}
	for _, c := range candidates {
		ok, _ := e.riskMgr.TryEnter(ctx, c.decision, c.price)
		if ok {
			stats.Entries++
		} else {
			stats.Rejections++
		}
	}

	stats.OpenPositions = e.riskMgr.OpenCount()
	stats.Duration = e.now().Sub(start)
	stats.FinishedAt = e.now()
	metrics.CyclesTotal.Inc()

	decisions := make([]fusion.Decision, 0, len(results))
	for _, r := range results {
		if !r.skipped {
			decisions = append(decisions, r.decision)
		}
	}
	e.mu.Lock()
	e.lastStats = stats
	e.lastDecisions = decisions
	e.mu.Unlock()

	return stats
}

// analyzeAll fans the per-instrument analysis out to a bounded worker pool.
// Each instrument is independent; failures and short windows skip just that
// instrument.
func (e *Engine) analyzeAll(ctx context.Context) []analysis {
	jobs := make(chan string)
	out := make(chan analysis, len(e.symbols))

	workers := e.cfg.Engine.AnalysisWorkers
	if workers > len(e.symbols) {
		workers = len(e.symbols)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				out <- e.analyzeSymbol(ctx, symbol)
			}
		}()
	}

	for _, symbol := range e.symbols {
		select {
		case jobs <- symbol:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
	close(out)

	results := make([]analysis, 0, len(e.symbols))
	for r := range out {
		results = append(results, r)
	}
	return results
}

// analyzeSymbol fetches market state and runs the three analyzers under a
// per-instrument timeout so one unresponsive symbol cannot starve the
// cycle.
func (e *Engine) analyzeSymbol(ctx context.Context, symbol string) analysis {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.Engine.InstrumentTimeoutSecs)*time.Second)
	defer cancel()

	skip := analysis{symbol: symbol, skipped: true}

	window, err := e.data.GetCandles(ctx, symbol, e.cfg.Exchange.Timeframe, e.cfg.Strategy.LookbackBars+10)
	if err != nil {
		e.log.Warn().Err(err).Str("sym", symbol).Msg("candle fetch failed")
		metrics.CapabilityErrorsTotal.WithLabelValues("get_candles").Inc()
		return skip
	}
	if len(window) < e.cfg.Strategy.LookbackBars {
		return skip
	}

	lastPrice, ok := e.lastPrice(symbol)
	if !ok {
		ticker, err := e.data.GetTicker(ctx, symbol)
		if err != nil {
			e.log.Warn().Err(err).Str("sym", symbol).Msg("ticker fetch failed")
			metrics.CapabilityErrorsTotal.WithLabelValues("get_ticker").Inc()
			return skip
		}
		lastPrice = ticker.LastPrice
	}

	book, err := e.data.GetOrderBook(ctx, symbol, 25)
	if err != nil {
		// The book only feeds one analyzer; keep going with an empty
		// snapshot, which the microstructure analyzer reports as flat.
		e.log.Debug().Err(err).Str("sym", symbol).Msg("order book fetch failed")
		metrics.CapabilityErrorsTotal.WithLabelValues("get_orderbook").Inc()
		book = market.OrderBook{Symbol: symbol}
	}

	in := strategy.Input{Symbol: symbol, Window: window, Book: book, LastPrice: lastPrice}

	var signals []signal.Signal
	for _, strat := range e.strategies.All() {
		s, err := strat.Analyze(ctx, in)
		if err != nil {
			if errors.Is(err, indicator.ErrInsufficientData) {
				return skip
			}
			e.log.Warn().Err(err).Str("sym", symbol).Str("strategy", strat.Name()).Msg("analysis failed")
			metrics.CapabilityErrorsTotal.WithLabelValues("analyze").Inc()
			return skip
		}
		metrics.SignalsTotal.WithLabelValues(string(s.Source), string(s.Direction)).Inc()
		signals = append(signals, s)
	}

	counted := 0
	for _, s := range signals {
		if !s.Flat() {
			counted++
		}
	}

	decision := fusion.Fuse(symbol, signals, e.cfg.Weights, e.cfg.Risk.ConfidenceThreshold)
	return analysis{symbol: symbol, decision: decision, price: lastPrice, signals: counted}
}

// lastPrice consults the streamed cache when one is attached.
func (e *Engine) lastPrice(symbol string) (float64, bool) {
	if e.prices == nil {
		return 0, false
	}
	return e.prices.LastPrice(symbol)
}

// maybeRetrain fires a non-blocking retrain request when the configured
// interval has elapsed. The predictor capability owns the actual work.
func (e *Engine) maybeRetrain(ctx context.Context) {
	if e.lastRetrain.IsZero() {
		e.lastRetrain = e.now()
		return
	}
	if e.now().Sub(e.lastRetrain) < time.Duration(e.cfg.Predictor.RetrainIntervalMins)*time.Minute {
		return
	}
	e.lastRetrain = e.now()

	symbols := e.symbols
	if len(symbols) > e.cfg.Predictor.RetrainSymbols {
		symbols = symbols[:e.cfg.Predictor.RetrainSymbols]
	}
	e.log.Info().Int("symbols", len(symbols)).Msg("requesting model retrain")

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		var windows []market.CandleWindow
		for _, symbol := range symbols {
			window, err := e.data.GetCandles(ctx, symbol, e.cfg.Exchange.Timeframe, 500)
			if err != nil {
				continue
			}
			windows = append(windows, window)
		}
		if err := e.predictor.RequestRetrain(ctx, windows); err != nil {
			e.log.Warn().Err(err).Msg("retrain request failed")
			metrics.CapabilityErrorsTotal.WithLabelValues("retrain").Inc()
		}
	}()
}

// refreshUniverse reloads the instrument list on the configured cadence.
func (e *Engine) refreshUniverse(ctx context.Context) error {
	if len(e.symbols) > 0 && e.now().Sub(e.universeFetched) < time.Duration(e.cfg.Universe.RefreshIntervalSecs)*time.Second {
		return nil
	}
	symbols, err := e.universe.GetInstruments(ctx, e.cfg.Universe.MinVolumeUSD, e.cfg.Universe.SkipTopN, e.cfg.Universe.Count)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return errors.New("universe provider returned no instruments")
	}
	e.symbols = symbols
	e.universeFetched = e.now()
	e.log.Info().Int("count", len(symbols)).Msg("universe refreshed")
	return nil
}

// SetUniverse overrides the instrument list, for callers that manage their
// own selection.
func (e *Engine) SetUniverse(symbols []string) {
	e.symbols = symbols
	e.universeFetched = e.now()
}

// Stats returns the last completed cycle's statistics.
func (e *Engine) Stats() CycleStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastStats
}

// Decisions returns the fused decisions from the last completed cycle.
func (e *Engine) Decisions() []fusion.Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]fusion.Decision, len(e.lastDecisions))
	copy(out, e.lastDecisions)
	return out
}
