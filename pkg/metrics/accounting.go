package metrics

import "github.com/prometheus/client_golang/prometheus"

// balanceHistogramBuckets spans a few orders of magnitude around the
// default payment_threshold (10_000 AU, see accounting.DefaultConfig),
// in both the owe-us and we-owe directions.
var balanceHistogramBuckets = []float64{
	-50_000, -20_000, -10_000, -5_000, -1_000, -100, 0,
	100, 1_000, 5_000, 10_000, 20_000, 50_000,
}

// AccountingMetrics records per-peer balance movement (spec.md §4.6).
// Every method is nil-safe.
type AccountingMetrics struct {
	balances     prometheus.Histogram
	settlements  *prometheus.CounterVec
	disconnects  prometheus.Counter
}

// NewAccountingMetrics registers the accounting subsystem's collectors
// against reg.
func NewAccountingMetrics(reg *Registry) *AccountingMetrics {
	return &AccountingMetrics{
		balances:    reg.histogram("accounting", "peer_balance", "Distribution of per-peer balances (AU) after each record.", balanceHistogramBuckets),
		settlements: reg.counterVec("accounting", "settlements_total", "Number of settlement attempts, by outcome.", "outcome"),
		disconnects: reg.counter("accounting", "disconnects_total", "Number of peers disconnected for exceeding the debt threshold."),
	}
}

func (m *AccountingMetrics) ObserveBalance(balance int64) {
	if m == nil {
		return
	}
	m.balances.Observe(float64(balance))
}

func (m *AccountingMetrics) IncSettlement(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *AccountingMetrics) IncDisconnect() {
	if m == nil {
		return
	}
	m.disconnects.Inc()
}
