package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/metrics"
)

func TestTopologyMetricsAreNilSafe(t *testing.T) {
	var m *metrics.TopologyMetrics
	require.NotPanics(t, func() {
		m.IncDepthChange()
		m.IncDialAttempt()
		m.IncDialFailure()
		m.SetBinPopulation(3, 5)
	})
}

func TestAccountingMetricsAreNilSafe(t *testing.T) {
	var m *metrics.AccountingMetrics
	require.NotPanics(t, func() {
		m.ObserveBalance(-100)
		m.IncSettlement(true)
		m.IncDisconnect()
	})
}

func TestAbuseMetricsAreNilSafe(t *testing.T) {
	var m *metrics.AbuseMetrics
	require.NotPanics(t, func() {
		m.IncBan()
		m.IncUnban()
	})
}

func TestRegistryExposesRegisteredCollectors(t *testing.T) {
	reg := metrics.NewRegistry()
	topo := metrics.NewTopologyMetrics(reg)
	topo.IncDialAttempt()
	topo.SetBinPopulation(5, 3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	reg.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	require.Contains(t, body, "beenode_topology_dial_attempts_total 1")
	require.True(t, strings.Contains(body, `beenode_topology_bin_population{bin="5"} 3`))
}

func TestRegistryRejectsDuplicateCollectorNames(t *testing.T) {
	reg := metrics.NewRegistry()
	metrics.NewAccountingMetrics(reg)
	require.Panics(t, func() { metrics.NewAccountingMetrics(reg) })
}
