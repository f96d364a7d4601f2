package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// TopologyMetrics records the topology manager's dial and depth
// activity (spec.md §4.3). Every method is nil-safe, so a *Kademlia
// that never had SetMetrics called pays nothing for it.
type TopologyMetrics struct {
	depthChanges   prometheus.Counter
	dialAttempts   prometheus.Counter
	dialFailures   prometheus.Counter
	binPopulation  *prometheus.GaugeVec
}

// NewTopologyMetrics registers the topology subsystem's collectors
// against reg.
func NewTopologyMetrics(reg *Registry) *TopologyMetrics {
	return &TopologyMetrics{
		depthChanges:  reg.counter("topology", "depth_changes_total", "Number of times the computed neighborhood depth changed."),
		dialAttempts:  reg.counter("topology", "dial_attempts_total", "Number of outbound dial attempts."),
		dialFailures:  reg.counter("topology", "dial_failures_total", "Number of outbound dial attempts that failed."),
		binPopulation: reg.gaugeVec("topology", "bin_population", "Connected peer count, by proximity-order bin.", "bin"),
	}
}

func (m *TopologyMetrics) IncDepthChange() {
	if m == nil {
		return
	}
	m.depthChanges.Inc()
}

func (m *TopologyMetrics) IncDialAttempt() {
	if m == nil {
		return
	}
	m.dialAttempts.Inc()
}

func (m *TopologyMetrics) IncDialFailure() {
	if m == nil {
		return
	}
	m.dialFailures.Inc()
}

func (m *TopologyMetrics) SetBinPopulation(bin uint8, size int) {
	if m == nil {
		return
	}
	m.binPopulation.WithLabelValues(strconv.Itoa(int(bin))).Set(float64(size))
}
