package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the trading agent.
type Metrics struct {
	CyclesTotal   prometheus.Counter
	CycleDuration prometheus.Histogram
	FeedErrors    prometheus.Counter
	TradingLocked prometheus.Gauge // 0=trading allowed, 1=locked

	// Indicator engine
	SamplesTotal     *prometheus.CounterVec // labels: instrument
	DiscardedSamples *prometheus.CounterVec // labels: instrument

	// Orders
	OrdersSubmitted  *prometheus.CounterVec // labels: side
	OrdersFailed     *prometheus.CounterVec // labels: side
	OrdersCancelled  prometheus.Counter
	StopLossTriggers prometheus.Counter

	// Positions and cash
	OpenLots      prometheus.Gauge
	CashAvailable prometheus.Gauge
	RealizedPnL   prometheus.Gauge
	UnrealizedPnL prometheus.Gauge

	// Persistence
	StoreSaveDur prometheus.Histogram
	StoreErrors  prometheus.Counter

	// Circuit breakers
	CircuitBreakerState *prometheus.GaugeVec   // labels: name; 0=closed, 1=open, 2=half-open
	CircuitBreakerTrips *prometheus.CounterVec // labels: name

	// Outbound delivery
	BufferedPublishes    prometheus.Counter
	NotificationsDropped prometheus.Counter
	WSClients            prometheus.Gauge
	WSDropped            *prometheus.CounterVec // labels: channel
}

// NewMetrics creates all metrics and registers them with reg. A nil reg uses
// the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptoagent_cycles_total",
			Help: "Decision cycles run",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptoagent_cycle_duration_seconds",
			Help:    "Wall time of one decision cycle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptoagent_feed_errors_total",
			Help: "Cycles aborted because a spot price could not be fetched",
		}),
		TradingLocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptoagent_trading_locked",
			Help: "Trading lock state (0=open, 1=locked)",
		}),

		SamplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptoagent_samples_total",
			Help: "Samples appended to the price series",
		}, []string{"instrument"}),
		DiscardedSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptoagent_discarded_samples_total",
			Help: "Samples discarded as frozen-feed repeats",
		}, []string{"instrument"}),

		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptoagent_orders_submitted_total",
			Help: "Orders accepted by the brokerage",
		}, []string{"side"}),
		OrdersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptoagent_orders_failed_total",
			Help: "Orders rejected or failed in transit",
		}, []string{"side"}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptoagent_orders_cancelled_total",
			Help: "Unfilled buy orders cancelled during reconciliation",
		}),
		StopLossTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptoagent_stop_loss_triggers_total",
			Help: "Sells triggered by the stop-loss threshold",
		}),

		OpenLots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptoagent_open_lots",
			Help: "Lots currently held",
		}),
		CashAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptoagent_cash_available",
			Help: "Cached available cash after reserve (-1 when unknown)",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptoagent_realized_pnl",
			Help: "Realised profit since start",
		}),
		UnrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptoagent_unrealized_pnl",
			Help: "Mark-to-market profit of open lots",
		}),

		StoreSaveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptoagent_store_save_duration_seconds",
			Help:    "State save latency",
			Buckets: prometheus.DefBuckets,
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptoagent_store_errors_total",
			Help: "Failed state saves",
		}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cryptoagent_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		CircuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptoagent_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"name"}),

		BufferedPublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptoagent_buffered_publishes_total",
			Help: "Reports buffered locally while the Redis circuit was open",
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptoagent_notifications_dropped_total",
			Help: "Notifications dropped because the delivery queue was full",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptoagent_ws_clients",
			Help: "Connected status-stream clients",
		}),
		WSDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptoagent_ws_dropped_total",
			Help: "Status-stream envelopes dropped because a client queue was full",
		}, []string{"channel"}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.FeedErrors,
		m.TradingLocked,
		m.SamplesTotal,
		m.DiscardedSamples,
		m.OrdersSubmitted,
		m.OrdersFailed,
		m.OrdersCancelled,
		m.StopLossTriggers,
		m.OpenLots,
		m.CashAvailable,
		m.RealizedPnL,
		m.UnrealizedPnL,
		m.StoreSaveDur,
		m.StoreErrors,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.BufferedPublishes,
		m.NotificationsDropped,
		m.WSClients,
		m.WSDropped,
	)

	return m
}

// BoolGauge converts a flag for a 0/1 gauge.
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
