package strategy

import (
	"context"
	"math"
	"strings"
	"testing"

	"hybridbot/internal/market"
	"hybridbot/internal/signal"
)

func TestMicrostructureRejectsWideSpread(t *testing.T) {
	strat := NewMicrostructure(0.05, 0.6)
	book := market.OrderBook{
		Bids: []market.Level{{Price: 100.0, Size: 10}},
		Asks: []market.Level{{Price: 100.2, Size: 10}}, // 0.2% spread
	}

	sig, err := strat.Analyze(context.Background(), Input{Book: book, LastPrice: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Direction != signal.None || sig.Confidence != 0 {
		t.Fatalf("expected rejection on wide spread, got %+v", sig)
	}
	if !strings.Contains(sig.Rationale, "spread") {
		t.Fatalf("expected spread rationale, got %q", sig.Rationale)
	}
}

func TestMicrostructureBuyerDominance(t *testing.T) {
	strat := NewMicrostructure(0.05, 0.6)
	// Max bid volume sits 1% below price so no proximity bonus fires.
	book := market.OrderBook{
		Bids: []market.Level{{Price: 99.99, Size: 20}, {Price: 99.0, Size: 25}},
		Asks: []market.Level{{Price: 100.01, Size: 10}, {Price: 102.0, Size: 9}},
	}

	sig, err := strat.Analyze(context.Background(), Input{Book: book, LastPrice: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Direction != signal.Buy {
		t.Fatalf("expected BUY on buyer dominance, got %s", sig.Direction)
	}
	want := (45.0 - 19.0) / 64.0
	if math.Abs(sig.Confidence-want) > 1e-12 {
		t.Fatalf("expected confidence %v, got %v", want, sig.Confidence)
	}
}

func TestMicrostructureSellerDominance(t *testing.T) {
	strat := NewMicrostructure(0.05, 0.6)
	book := market.OrderBook{
		Bids: []market.Level{{Price: 99.99, Size: 5}, {Price: 98.0, Size: 5}},
		Asks: []market.Level{{Price: 100.01, Size: 20}, {Price: 102.0, Size: 20}},
	}

	sig, err := strat.Analyze(context.Background(), Input{Book: book, LastPrice: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Direction != signal.Sell {
		t.Fatalf("expected SELL on seller dominance, got %s", sig.Direction)
	}
	if sig.Confidence > 0.8 {
		t.Fatalf("confidence above cap: %v", sig.Confidence)
	}
}

func TestMicrostructureSupportProximityBonus(t *testing.T) {
	strat := NewMicrostructure(0.05, 0.6)
	// Largest bid wall 0.01% under price counts as nearby support.
	book := market.OrderBook{
		Bids: []market.Level{{Price: 99.995, Size: 30}, {Price: 99.99, Size: 40}},
		Asks: []market.Level{{Price: 100.005, Size: 10}, {Price: 102.0, Size: 15}},
	}

	sig, err := strat.Analyze(context.Background(), Input{Book: book, LastPrice: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Direction != signal.Buy {
		t.Fatalf("expected BUY, got %s", sig.Direction)
	}
	base := (70.0 - 25.0) / 95.0
	want := base + 0.15
	if math.Abs(sig.Confidence-want) > 1e-12 {
		t.Fatalf("expected bonus-applied confidence %v, got %v", want, sig.Confidence)
	}
	if !strings.Contains(sig.Rationale, "support") {
		t.Fatalf("expected support rationale, got %q", sig.Rationale)
	}
}

func TestMicrostructureEmptyBook(t *testing.T) {
	strat := NewMicrostructure(0.05, 0.6)
	sig, err := strat.Analyze(context.Background(), Input{Book: market.OrderBook{}, LastPrice: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Direction != signal.None || sig.Confidence != 0 {
		t.Fatalf("expected flat signal on empty book, got %+v", sig)
	}
}

func TestMicrostructureBalancedBookIsFlatDirection(t *testing.T) {
	strat := NewMicrostructure(0.05, 0.6)
	book := market.OrderBook{
		Bids: []market.Level{{Price: 99.0, Size: 10}},
		Asks: []market.Level{{Price: 99.01, Size: 10}},
	}
	sig, err := strat.Analyze(context.Background(), Input{Book: book, LastPrice: 99})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Direction != signal.None {
		t.Fatalf("expected no direction on balanced book, got %s", sig.Direction)
	}
}
