package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cprbot_ticks_total", Help: "Evaluation ticks inside a trading window"},
	)
	TicksDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cprbot_ticks_dropped_total", Help: "Ticks dropped because the previous evaluation was still running"},
	)
	TicksSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cprbot_ticks_skipped_total", Help: "Ticks aborted before the state machine ran"},
		[]string{"reason"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cprbot_signals_total", Help: "Signals produced by the strategy"},
		[]string{"action"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cprbot_orders_total", Help: "Orders submitted to the gateway"},
		[]string{"side", "result"},
	)
	UnhedgedFlips = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cprbot_unhedged_flips_total", Help: "Flips whose exit succeeded but whose entry failed"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, TicksDropped, TicksSkipped, SignalsTotal, OrdersTotal, UnhedgedFlips)
}

func Serve(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	return srv
}
