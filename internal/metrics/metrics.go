package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of price ticks ingested"},
		[]string{"symbol"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Simulated trades executed"},
		[]string{"symbol", "side"},
	)
	TradeRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trade_rejects_total", Help: "Trade attempts rejected by ledger preconditions"},
		[]string{"symbol", "reason"},
	)
	FeedReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_reconnects_total", Help: "Websocket feed reconnect attempts"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, TradesTotal, TradeRejectsTotal, FeedReconnectsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
