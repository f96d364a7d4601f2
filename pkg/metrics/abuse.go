package metrics

import "github.com/prometheus/client_golang/prometheus"

// AbuseMetrics records per-IP ban activity (spec.md §3, "Per-IP
// score"). Every method is nil-safe.
type AbuseMetrics struct {
	bans   prometheus.Counter
	unbans prometheus.Counter
}

// NewAbuseMetrics registers the abuse subsystem's collectors against
// reg.
func NewAbuseMetrics(reg *Registry) *AbuseMetrics {
	return &AbuseMetrics{
		bans:   reg.counter("abuse", "ip_bans_total", "Number of IPs banned."),
		unbans: reg.counter("abuse", "ip_unbans_total", "Number of IPs unbanned."),
	}
}

func (m *AbuseMetrics) IncBan() {
	if m == nil {
		return
	}
	m.bans.Inc()
}

func (m *AbuseMetrics) IncUnban() {
	if m == nil {
		return
	}
	m.unbans.Inc()
}
