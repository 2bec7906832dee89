// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Monitor metrics
	NotificationsReceived *prometheus.CounterVec
	DuplicatesDropped     prometheus.Counter
	FailedTxDropped       prometheus.Counter
	QueueDepth            prometheus.Gauge
	WSReconnects          *prometheus.CounterVec

	// Decoder metrics
	CandidatesDecoded prometheus.Counter
	DecodeErrors      *prometheus.CounterVec

	// Heuristics metrics
	Decisions *prometheus.CounterVec

	// Execution metrics
	OrdersSubmitted *prometheus.CounterVec
	OrdersFailed    *prometheus.CounterVec
	ConfirmLatency  prometheus.Histogram
	TipLamports     prometheus.Histogram

	// Position metrics
	OpenPositions   prometheus.Gauge
	PositionsClosed *prometheus.CounterVec
	RealizedPnLSOL  prometheus.Gauge

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCErrors      *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "launch_sniper"
	}

	return &Metrics{
		NotificationsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "notifications_received_total",
			Help:      "Log notifications received per websocket endpoint",
		}, []string{"endpoint"}),
		DuplicatesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "duplicates_dropped_total",
			Help:      "Notifications dropped because the signature was already seen",
		}),
		FailedTxDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "failed_tx_dropped_total",
			Help:      "Notifications dropped because the transaction failed",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "queue_depth",
			Help:      "Notifications waiting in the fan-in queue",
		}),
		WSReconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ws_reconnects_total",
			Help:      "Websocket re-dials per endpoint",
		}, []string{"endpoint"}),

		CandidatesDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "candidates_decoded_total",
			Help:      "Create transactions decoded into candidates",
		}),
		DecodeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "errors_total",
			Help:      "Decode failures by stage",
		}, []string{"stage"}),

		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heuristics",
			Name:      "decisions_total",
			Help:      "Heuristic decisions by outcome and deciding rule",
		}, []string{"outcome", "rule"}),

		OrdersSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_submitted_total",
			Help:      "Orders submitted by side and route",
		}, []string{"side", "route"}),
		OrdersFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_failed_total",
			Help:      "Orders that did not confirm",
		}, []string{"side"}),
		ConfirmLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "confirm_latency_seconds",
			Help:      "Time from submission to confirmation",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}),
		TipLamports: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "tip_lamports",
			Help:      "Relay tip paid per order",
			Buckets:   prometheus.ExponentialBuckets(5_000, 4, 8),
		}),

		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Open or reserved positions",
		}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "closed_total",
			Help:      "Closed positions by exit reason",
		}, []string{"reason"}),
		RealizedPnLSOL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "realized_pnl_sol",
			Help:      "Cumulative realized profit and loss in SOL",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_errors_total",
			Help:      "Solana RPC failures by method and class",
		}, []string{"method", "class"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "State store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "State store operation errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordNotification counts a log notification from endpoint.
func RecordNotification(endpoint string) {
	DefaultMetrics.NotificationsReceived.WithLabelValues(endpoint).Inc()
}

// RecordDuplicate counts a deduplicated notification.
func RecordDuplicate() {
	DefaultMetrics.DuplicatesDropped.Inc()
}

// RecordFailedTx counts a notification for a failed transaction.
func RecordFailedTx() {
	DefaultMetrics.FailedTxDropped.Inc()
}

// SetQueueDepth updates the fan-in queue gauge.
func SetQueueDepth(n int) {
	DefaultMetrics.QueueDepth.Set(float64(n))
}

// RecordReconnect counts a websocket re-dial.
func RecordReconnect(endpoint string) {
	DefaultMetrics.WSReconnects.WithLabelValues(endpoint).Inc()
}

// RecordCandidate counts a decoded candidate.
func RecordCandidate() {
	DefaultMetrics.CandidatesDecoded.Inc()
}

// RecordDecodeError counts a decode failure at stage.
func RecordDecodeError(stage string) {
	DefaultMetrics.DecodeErrors.WithLabelValues(stage).Inc()
}

// RecordDecision counts a heuristics outcome.
func RecordDecision(accepted bool, rule string) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	DefaultMetrics.Decisions.WithLabelValues(outcome, rule).Inc()
}

// RecordOrderSubmitted counts a submitted order.
func RecordOrderSubmitted(side, route string) {
	DefaultMetrics.OrdersSubmitted.WithLabelValues(side, route).Inc()
}

// RecordOrderFailed counts an order that did not confirm.
func RecordOrderFailed(side string) {
	DefaultMetrics.OrdersFailed.WithLabelValues(side).Inc()
}

// RecordConfirmLatency records submission-to-confirmation time.
func RecordConfirmLatency(seconds float64) {
	DefaultMetrics.ConfirmLatency.Observe(seconds)
}

// RecordTip records a relay tip.
func RecordTip(lamports uint64) {
	DefaultMetrics.TipLamports.Observe(float64(lamports))
}

// SetOpenPositions updates the open positions gauge.
func SetOpenPositions(n int) {
	DefaultMetrics.OpenPositions.Set(float64(n))
}

// RecordPositionClosed counts a close and adds its realized PnL.
func RecordPositionClosed(reason string, pnlSOL float64) {
	DefaultMetrics.PositionsClosed.WithLabelValues(reason).Inc()
	DefaultMetrics.RealizedPnLSOL.Add(pnlSOL)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCError counts an RPC failure.
func RecordRPCError(method, class string) {
	DefaultMetrics.RPCErrors.WithLabelValues(method, class).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
