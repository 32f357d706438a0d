// Package metrics exposes the engine's operational counters as
// prometheus/client_golang collectors, the same dependency BikeshR-menorepo
// wires into its trading services for observability. None of this
// participates in the deterministic core: a Recorder is an events.Sink
// implementation, observing the emitted event stream from outside
// Process/ProcessMarket, the same way internal/transport does.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"simulex/internal/events"
)

// Recorder increments prometheus collectors from the emitted event
// stream. It is stateless beyond the collectors themselves and safe to
// register once per process.
type Recorder struct {
	commandsProcessed prometheus.Counter
	ordersByStatus    *prometheus.CounterVec
	fillsTotal        *prometheus.CounterVec
	fillNotional      *prometheus.CounterVec
	workingOrders     prometheus.Gauge
}

// New builds a Recorder and registers its collectors against reg. Passing
// a fresh prometheus.NewRegistry() per backtest run avoids duplicate
// registration panics across repeated engine construction in tests.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		commandsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simulex",
			Name:      "commands_processed_total",
			Help:      "Trading commands drained from the command queue.",
		}),
		ordersByStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simulex",
			Name:      "orders_terminal_total",
			Help:      "Orders reaching a terminal status, labeled by status.",
		}, []string{"status"}),
		fillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simulex",
			Name:      "fills_total",
			Help:      "Fills applied, labeled by instrument and liquidity side.",
		}, []string{"instrument", "liquidity"}),
		fillNotional: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simulex",
			Name:      "fill_notional_total",
			Help:      "Cumulative fill notional (price*qty), labeled by instrument.",
		}, []string{"instrument"}),
		workingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simulex",
			Name:      "working_orders",
			Help:      "Orders currently resting in the book.",
		}),
	}
	reg.MustRegister(r.commandsProcessed, r.ordersByStatus, r.fillsTotal, r.fillNotional, r.workingOrders)
	return r
}

// IncCommandsProcessed records one drained command. Emit never moves this
// counter, since a single command can emit zero or several events; it
// changes only when a caller invokes this method.
func (r *Recorder) IncCommandsProcessed() {
	r.commandsProcessed.Inc()
}

// SetWorkingOrders overwrites the working-order gauge. Emit never updates
// it; the gauge changes only when a caller invokes this method.
func (r *Recorder) SetWorkingOrders(n int) {
	r.workingOrders.Set(float64(n))
}

// Emit implements events.Sink, incrementing the relevant collector per
// terminal/fill event and ignoring the rest.
func (r *Recorder) Emit(e events.Event) {
	switch ev := e.(type) {
	case events.OrderRejected:
		r.ordersByStatus.WithLabelValues("REJECTED").Inc()
	case events.OrderCanceled:
		r.ordersByStatus.WithLabelValues("CANCELED").Inc()
	case events.OrderExpired:
		r.ordersByStatus.WithLabelValues("EXPIRED").Inc()
	case events.OrderFilled:
		r.fillsTotal.WithLabelValues(ev.InstrumentID, ev.LiquiditySide.String()).Inc()
		r.fillNotional.WithLabelValues(ev.InstrumentID).Add(ev.Quantity.Mul(ev.Price).InexactFloat64())
	}
}
