// Package risk owns the position lifecycle and the admission checks gating
// every new entry. All position and counter state is mutated exclusively
// through the Manager so the exposure invariants stay enforceable.
package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hybridbot/internal/config"
	"hybridbot/internal/fusion"
	"hybridbot/internal/market"
	"hybridbot/internal/metrics"
	"hybridbot/internal/signal"
)

// Reason classifies why an entry was admitted or rejected. Rejections are
// normal control flow, not failures, and are counted separately from
// capability errors.
type Reason string

const (
	Admitted            Reason = "admitted"
	RejectNoDirection   Reason = "no_direction"
	RejectLowConfidence Reason = "below_threshold"
	RejectDailyCap      Reason = "daily_cap"
	RejectCooldown      Reason = "cooldown"
	RejectMaxPositions  Reason = "max_positions"
	RejectNoBalance     Reason = "insufficient_balance"
	RejectOrderFailed   Reason = "order_failed"
)

const maxRecentClosed = 100

// Manager enforces exposure, rate, and loss limits over an owned position
// store. Mutation happens from the single scheduler goroutine; the mutex
// exists for the read-only snapshots served to external consumers.
type Manager struct {
	cfg  config.Risk
	exec market.Execution
	log  zerolog.Logger
	now  func() time.Time

	mu           sync.Mutex
	positions    map[string]*Position
	recentClosed []Position
	tradesToday  map[string]int
	lastTrade    map[string]time.Time
	counterDay   time.Time
}

// NewManager builds a manager around the execution capability.
func NewManager(cfg config.Risk, exec market.Execution, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		exec:        exec,
		log:         log.With().Str("component", "risk").Logger(),
		now:         time.Now,
		positions:   make(map[string]*Position),
		tradesToday: make(map[string]int),
		lastTrade:   make(map[string]time.Time),
		counterDay:  time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// OpenCount reports how many positions are currently open.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// TryEnter runs the admission checks for a fused decision and, when all
// pass, sizes and submits the entry order. It fails closed: any rejected
// check returns false with the reason and mutates nothing. The position is
// recorded, and counters bumped, only after the venue acknowledges.
func (m *Manager) TryEnter(ctx context.Context, decision fusion.Decision, price float64) (bool, Reason) {
	if decision.Direction == signal.None {
		return m.reject(decision.Symbol, RejectNoDirection)
	}
	if decision.Confidence < m.cfg.ConfidenceThreshold {
		return m.reject(decision.Symbol, RejectLowConfidence)
	}

	m.mu.Lock()
	m.rollCountersLocked(m.now())
	switch {
	case m.tradesToday[decision.Symbol] >= m.cfg.MaxTradesPerDay:
		m.mu.Unlock()
		return m.reject(decision.Symbol, RejectDailyCap)
	case m.cfg.CooldownSecs > 0 && !m.lastTrade[decision.Symbol].IsZero() &&
		m.now().Sub(m.lastTrade[decision.Symbol]) < time.Duration(m.cfg.CooldownSecs)*time.Second:
		m.mu.Unlock()
		return m.reject(decision.Symbol, RejectCooldown)
	case len(m.positions) >= m.cfg.MaxPositions:
		m.mu.Unlock()
		return m.reject(decision.Symbol, RejectMaxPositions)
	}
	m.mu.Unlock()

	qty, err := m.positionSize(ctx, decision.Confidence, price)
	if err != nil {
		m.log.Warn().Err(err).Str("sym", decision.Symbol).Msg("sizing failed")
		metrics.CapabilityErrorsTotal.WithLabelValues("balance").Inc()
		return m.reject(decision.Symbol, RejectNoBalance)
	}
	if qty <= 0 {
		return m.reject(decision.Symbol, RejectNoBalance)
	}

	side := market.Buy
	if decision.Direction == signal.Sell {
		side = market.Sell
	}
	ack, err := m.exec.PlaceOrder(ctx, decision.Symbol, side, qty)
	if err != nil {
		m.log.Error().Err(err).Str("sym", decision.Symbol).Msg("entry order failed")
		metrics.CapabilityErrorsTotal.WithLabelValues("place_order").Inc()
		return false, RejectOrderFailed
	}

	pos := &Position{
		ID:         orderID(ack),
		Symbol:     decision.Symbol,
		Side:       side,
		Qty:        qty,
		EntryPrice: price,
		EntryTime:  m.now(),
		Confidence: decision.Confidence,
		State:      StateOpen,
	}

	m.mu.Lock()
	m.positions[pos.ID] = pos
	m.tradesToday[decision.Symbol]++
	m.lastTrade[decision.Symbol] = m.now()
	open := len(m.positions)
	m.mu.Unlock()

	metrics.OrdersTotal.WithLabelValues(decision.Symbol, string(side)).Inc()
	metrics.OpenPositions.Set(float64(open))
	m.log.Info().
		Str("sym", decision.Symbol).Str("side", string(side)).
		Float64("qty", qty).Float64("px", price).Float64("conf", decision.Confidence).
		Msg("entered position")
	return true, Admitted
}

func (m *Manager) reject(symbol string, reason Reason) (bool, Reason) {
	metrics.AdmissionRejectsTotal.WithLabelValues(string(reason)).Inc()
	m.log.Debug().Str("sym", symbol).Str("reason", string(reason)).Msg("entry rejected")
	return false, reason
}

// positionSize converts confidence into contracts:
// baseSize * (0.5 + confidence*1.5) * leverage / price, so sizing scales
// 0.5x-2.0x with conviction, bounded by the available balance.
func (m *Manager) positionSize(ctx context.Context, confidence, price float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %.4f", price)
	}
	balance, err := m.exec.GetBalance(ctx)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if balance.Available < m.cfg.BaseSizeUSD {
		return 0, nil
	}
	multiplier := 0.5 + confidence*1.5
	notional := m.cfg.BaseSizeUSD * multiplier * m.cfg.Leverage
	return math.Round(notional/price*1e4) / 1e4, nil
}

// Monitor runs the per-cycle pass over open positions: externally closed
// positions are reconciled, and stop-loss / take-profit breaches issue a
// market close through the venue before the position is marked closed.
// Capability errors skip the position and leave its state untouched.
func (m *Manager) Monitor(ctx context.Context) int {
	m.mu.Lock()
	open := make([]*Position, 0, len(m.positions))
	for _, p := range m.positions {
		open = append(open, p)
	}
	m.mu.Unlock()

	closed := 0
	for _, pos := range open {
		live, err := m.exec.GetPosition(ctx, pos.Symbol)
		if err != nil {
			m.log.Warn().Err(err).Str("sym", pos.Symbol).Msg("position query failed")
			metrics.CapabilityErrorsTotal.WithLabelValues("get_position").Inc()
			continue
		}

		if live == nil || live.Size == 0 {
			exitPrice := pos.EntryPrice
			var pnl float64
			if live != nil {
				exitPrice = live.CurrentPrice
				pnl = live.Pnl
			}
			m.close(pos, exitPrice, pnl, "external")
			closed++
			continue
		}

		pnlPct := live.PnlPercent * 100
		switch {
		case pnlPct <= -m.cfg.StopLossPct:
			if m.closeOnVenue(ctx, pos, live, "stop_loss") {
				closed++
			}
		case pnlPct >= m.cfg.TakeProfitPct:
			if m.closeOnVenue(ctx, pos, live, "take_profit") {
				closed++
			}
		}
	}
	return closed
}

func (m *Manager) closeOnVenue(ctx context.Context, pos *Position, live *market.LivePosition, reason string) bool {
	if _, err := m.exec.ClosePosition(ctx, pos.Symbol); err != nil {
		m.log.Error().Err(err).Str("sym", pos.Symbol).Str("reason", reason).Msg("close order failed")
		metrics.CapabilityErrorsTotal.WithLabelValues("close_position").Inc()
		return false
	}
	m.close(pos, live.CurrentPrice, live.Pnl, reason)
	return true
}

func (m *Manager) close(pos *Position, exitPrice, pnl float64, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos.State != StateOpen {
		return
	}
	pos.State = StateClosed
	pos.ExitPrice = exitPrice
	pos.ExitTime = m.now()
	pos.RealizedPnl = pnl
	pos.CloseReason = reason
	delete(m.positions, pos.ID)

	m.recentClosed = append(m.recentClosed, *pos)
	if len(m.recentClosed) > maxRecentClosed {
		m.recentClosed = m.recentClosed[len(m.recentClosed)-maxRecentClosed:]
	}

	metrics.OpenPositions.Set(float64(len(m.positions)))
	m.log.Info().
		Str("sym", pos.Symbol).Str("reason", reason).
		Float64("pnl", pnl).Float64("exit", exitPrice).
		Msg("position closed")
}

// rollCountersLocked resets daily trade counters on UTC day rollover.
func (m *Manager) rollCountersLocked(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if day.After(m.counterDay) {
		m.tradesToday = make(map[string]int)
		m.counterDay = day
	}
}

// Snapshot copies the active and recently closed positions for read-only
// consumers such as the status API.
func (m *Manager) Snapshot() (open []Position, closed []Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	open = make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		open = append(open, *p)
	}
	closed = make([]Position, len(m.recentClosed))
	copy(closed, m.recentClosed)
	return open, closed
}

// TradesToday reports the per-symbol trade count for the current UTC day.
func (m *Manager) TradesToday(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tradesToday[symbol]
}

func orderID(ack market.OrderAck) string {
	if ack.OrderID != "" {
		return ack.OrderID
	}
	return uuid.NewString()
}
