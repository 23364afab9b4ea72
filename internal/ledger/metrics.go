package ledger

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts ledger writes and cache recomputes.
type Metrics struct {
	entries    *prometheus.CounterVec
	recomputes *prometheus.CounterVec
}

// NewMetrics registers ledger collectors against the registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gstbilling_ledger_entries_total",
		Help: "Ledger entries written or removed, by ledger and operation.",
	}, []string{"ledger", "op"})
	recomputes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gstbilling_ledger_recomputes_total",
		Help: "Full balance cache recomputes by subject.",
	}, []string{"subject"})
	if registerer != nil {
		registerer.MustRegister(entries, recomputes)
	}
	return &Metrics{entries: entries, recomputes: recomputes}
}

func (m *Metrics) entry(ledger, op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.entries.WithLabelValues(ledger, op).Add(float64(n))
}

func (m *Metrics) recompute(subject string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recomputes.WithLabelValues(subject).Add(float64(n))
}
