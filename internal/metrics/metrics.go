// Package metrics registers engine counters and serves the prometheus endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Strategy signals produced"},
		[]string{"source", "direction"},
	)
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "decisions_total", Help: "Fused decisions per direction"},
		[]string{"direction"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
	AdmissionRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "admission_rejects_total", Help: "Entries rejected by risk checks"},
		[]string{"reason"},
	)
	CapabilityErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "capability_errors_total", Help: "External capability call failures"},
		[]string{"op"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "open_positions", Help: "Currently open positions"},
	)
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cycles_total", Help: "Completed scheduler cycles"},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsTotal, DecisionsTotal, OrdersTotal,
		AdmissionRejectsTotal, CapabilityErrorsTotal,
		OpenPositions, CyclesTotal,
	)
}

// Serve exposes /metrics on the supplied address in a background goroutine.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
