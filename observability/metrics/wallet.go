package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// WalletMetrics aggregates the prometheus collectors for the yield-position
// orchestration core.
type WalletMetrics struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	dripRequests       *prometheus.CounterVec
	reconcileAttempts  prometheus.Counter
	reconcileExhausted prometheus.Counter
	staleWriteRejected prometheus.Counter
	principalUnits     prometheus.Gauge
}

var (
	walletOnce     sync.Once
	walletRegistry *WalletMetrics
)

// Wallet returns the process-wide wallet metrics registry, creating and
// registering the collectors on first use.
func Wallet() *WalletMetrics {
	walletOnce.Do(func() {
		walletRegistry = &WalletMetrics{
			operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "wallet_operations_total",
				Help: "Count of completed operations by kind and outcome.",
			}, []string{"kind", "outcome"}),
			operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "wallet_operation_duration_seconds",
				Help:    "Wall-clock duration of operations from gas check to terminal state.",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			}, []string{"kind"}),
			dripRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "wallet_gas_drip_requests_total",
				Help: "Count of faucet drip requests by outcome.",
			}, []string{"outcome"}),
			reconcileAttempts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "wallet_reconcile_attempts_total",
				Help: "Number of authoritative re-fetches issued by the reconciliation poller.",
			}),
			reconcileExhausted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "wallet_reconcile_exhausted_total",
				Help: "Number of reconciliation jobs dropped after the retry budget ran out.",
			}),
			staleWriteRejected: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "wallet_position_stale_writes_rejected_total",
				Help: "Authoritative cache writes rejected by the recency check.",
			}),
			principalUnits: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "wallet_total_principal_units",
				Help: "Aggregate principal across known chains in display units.",
			}),
		}
		prometheus.MustRegister(
			walletRegistry.operationsTotal,
			walletRegistry.operationDuration,
			walletRegistry.dripRequests,
			walletRegistry.reconcileAttempts,
			walletRegistry.reconcileExhausted,
			walletRegistry.staleWriteRejected,
			walletRegistry.principalUnits,
		)
	})
	return walletRegistry
}

func (m *WalletMetrics) ObserveOperation(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operationsTotal.WithLabelValues(kind, outcome).Inc()
	m.operationDuration.WithLabelValues(kind).Observe(seconds)
}

func (m *WalletMetrics) ObserveDrip(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.dripRequests.WithLabelValues(outcome).Inc()
}

func (m *WalletMetrics) ObserveReconcileAttempt() {
	if m == nil {
		return
	}
	m.reconcileAttempts.Inc()
}

func (m *WalletMetrics) ObserveReconcileExhausted() {
	if m == nil {
		return
	}
	m.reconcileExhausted.Inc()
}

func (m *WalletMetrics) ObserveStaleWriteRejected() {
	if m == nil {
		return
	}
	m.staleWriteRejected.Inc()
}

func (m *WalletMetrics) SetPrincipalUnits(units float64) {
	if m == nil {
		return
	}
	m.principalUnits.Set(units)
}
