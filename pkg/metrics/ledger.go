package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks movement throughput and balance cache health.
type LedgerMetrics struct {
	movements     *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	rebuilds      prometheus.Counter
	staleBalances prometheus.Gauge
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_movements_total",
		Help: "Movements appended to the stock ledger by kind.",
	}, []string{"kind"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rejections_total",
		Help: "Movement requests rejected before append, by reason.",
	}, []string{"reason"})
	rebuilds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balance_rebuilds_total",
		Help: "Balance cache rebuilds from ledger replay.",
	})
	staleBalances := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "balance_stale_rows",
		Help: "Stale balance rows found by the last reconcile pass.",
	})
	reg.MustRegister(movements, rejections, rebuilds, staleBalances)
	return &LedgerMetrics{
		movements:     movements,
		rejections:    rejections,
		rebuilds:      rebuilds,
		staleBalances: staleBalances,
	}
}

// IncMovement increments the movement counter for the given kind.
func (l *LedgerMetrics) IncMovement(kind string) {
	if l == nil || l.movements == nil {
		return
	}
	l.movements.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncRejection increments the rejection counter for the given reason.
func (l *LedgerMetrics) IncRejection(reason string) {
	if l == nil || l.rejections == nil {
		return
	}
	l.rejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncRebuild increments the rebuild counter.
func (l *LedgerMetrics) IncRebuild() {
	if l == nil || l.rebuilds == nil {
		return
	}
	l.rebuilds.Inc()
}

// SetStaleBalances records how many stale rows the reconciler observed.
func (l *LedgerMetrics) SetStaleBalances(n int) {
	if l == nil || l.staleBalances == nil {
		return
	}
	l.staleBalances.Set(float64(n))
}
