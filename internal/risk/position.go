package risk

import (
	"time"

	"hybridbot/internal/market"
)

// State tracks the position lifecycle. The only transition is
// StateOpen -> StateClosed; a closed position is never mutated again.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Position is one owned trade. Created on an acknowledged entry, mutated
// only by the manager's monitoring pass, removed from the active set once
// closed.
type Position struct {
	ID          string
	Symbol      string
	Side        market.Side
	Qty         float64
	EntryPrice  float64
	EntryTime   time.Time
	Confidence  float64
	State       State
	ExitPrice   float64
	ExitTime    time.Time
	RealizedPnl float64
	CloseReason string
}
