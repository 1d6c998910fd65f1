package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"hybridbot/internal/config"
	"hybridbot/internal/engine"
	"hybridbot/internal/fusion"
	"hybridbot/internal/market"
	"hybridbot/internal/risk"
	"hybridbot/internal/signal"
)

type fakeSource struct {
	stats     engine.CycleStats
	decisions []fusion.Decision
	riskMgr   *risk.Manager
}

func (f *fakeSource) Stats() engine.CycleStats     { return f.stats }
func (f *fakeSource) Decisions() []fusion.Decision { return f.decisions }
func (f *fakeSource) Risk() *risk.Manager          { return f.riskMgr }

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	exec := market.NewStubExecution(zerolog.Nop(), 100000)
	mgr := risk.NewManager(config.Risk{
		BaseSizeUSD:         100,
		Leverage:            1,
		MaxPositions:        5,
		MaxTradesPerDay:     20,
		StopLossPct:         2,
		TakeProfitPct:       5,
		ConfidenceThreshold: 0.65,
	}, exec, zerolog.Nop())
	if ok, reason := mgr.TryEnter(context.Background(), fusion.Decision{
		Symbol: "BTCUSDT", Direction: signal.Buy, Confidence: 0.9,
	}, 100); !ok {
		t.Fatalf("seed entry rejected: %s", reason)
	}
	return &fakeSource{
		stats:     engine.CycleStats{Cycle: 7, Analyzed: 12, Entries: 1, OpenPositions: 1},
		decisions: []fusion.Decision{{Symbol: "BTCUSDT", Direction: signal.Buy, Confidence: 0.9}},
		riskMgr:   mgr,
	}
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	s := New(newFakeSource(t), zerolog.Nop())

	rec := get(t, s, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var stats engine.CycleStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if stats.Cycle != 7 || stats.Analyzed != 12 {
		t.Fatalf("unexpected stats payload: %+v", stats)
	}
}

func TestPositionsEndpoint(t *testing.T) {
	s := New(newFakeSource(t), zerolog.Nop())

	rec := get(t, s, "/api/positions")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var body positionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Open) != 1 || body.Open[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected open positions: %+v", body.Open)
	}
	if len(body.Closed) != 0 {
		t.Fatalf("expected no closed positions, got %+v", body.Closed)
	}
}

func TestDecisionsEndpoint(t *testing.T) {
	s := New(newFakeSource(t), zerolog.Nop())

	rec := get(t, s, "/api/decisions")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var decisions []fusion.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &decisions); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Direction != signal.Buy {
		t.Fatalf("unexpected decisions payload: %+v", decisions)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	s := New(newFakeSource(t), zerolog.Nop())
	if rec := get(t, s, "/api/orders"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
