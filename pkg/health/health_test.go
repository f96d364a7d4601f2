package health_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/health"
	"github.com/ethersphere/beenode/pkg/swarm"
	"github.com/ethersphere/beenode/pkg/topology"
)

type fakeTopology struct {
	reachable bool
	peerCount int
	snapshot  *topology.KadParams
}

func (f *fakeTopology) Snapshot() *topology.KadParams          { return f.snapshot }
func (f *fakeTopology) IsReachable() bool                      { return f.reachable }
func (f *fakeTopology) PeersCount(topology.Select) int         { return f.peerCount }

type fakeBalances struct {
	balances map[string]int64
}

func (f *fakeBalances) Peers() []swarm.Address {
	out := make([]swarm.Address, 0, len(f.balances))
	for k := range f.balances {
		out = append(out, swarm.MustNewAddress([]byte(pad32(k))))
	}
	return out
}

func (f *fakeBalances) Balance(addr swarm.Address) int64 {
	return f.balances[string(addr.Bytes())]
}

func pad32(s string) []byte {
	buf := make([]byte, swarm.AddressLength)
	copy(buf, s)
	return buf
}

func snapshotWithConnectedBins(n int) *topology.KadParams {
	var bins topology.KadBins
	for i := 0; i < n; i++ {
		bins[i].BinConnected = 1
	}
	return &topology.KadParams{Bins: bins}
}

func doRequest(t *testing.T, h *health.Handler, headers []string, body string) (int, map[string]string) {
	t.Helper()
	var r *http.Request
	var err error
	if body != "" {
		r, err = http.NewRequest(http.MethodGet, "http://localhost/health", bytes.NewBufferString(body))
	} else {
		r, err = http.NewRequest(http.MethodGet, "http://localhost/health", nil)
	}
	require.NoError(t, err)
	for _, header := range headers {
		r.Header.Add("X-BEE-HEALTHCHECK", header)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	result := w.Result()
	defer result.Body.Close()
	var parsed map[string]string
	require.NoError(t, json.NewDecoder(result.Body).Decode(&parsed))
	return result.StatusCode, parsed
}

func TestHeaderDrivenNeighborhoodOK(t *testing.T) {
	h := &health.Handler{Topology: &fakeTopology{reachable: true}, Balances: &fakeBalances{}}
	status, body := doRequest(t, h, []string{"neighborhood"}, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "OK", body["neighborhood"])
	require.Equal(t, "DISABLED", body["min_peer_count"])
}

func TestHeaderDrivenNeighborhoodError(t *testing.T) {
	h := &health.Handler{Topology: &fakeTopology{reachable: false}, Balances: &fakeBalances{}}
	status, body := doRequest(t, h, []string{"neighborhood"}, "")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body["neighborhood"], "ERROR")
}

func TestHeaderDrivenMinPeerCount(t *testing.T) {
	h := &health.Handler{Topology: &fakeTopology{peerCount: 2}, Balances: &fakeBalances{}}

	status, body := doRequest(t, h, []string{"min_peer_count1"}, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "OK", body["min_peer_count"])

	status, body = doRequest(t, h, []string{"min_peer_count10"}, "")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body["min_peer_count"], "not enough peers")
}

func TestHeaderDrivenMinConnectedBins(t *testing.T) {
	h := &health.Handler{Topology: &fakeTopology{snapshot: snapshotWithConnectedBins(3)}, Balances: &fakeBalances{}}

	status, body := doRequest(t, h, []string{"min_connected_bins2"}, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "OK", body["min_connected_bins"])

	status, body = doRequest(t, h, []string{"min_connected_bins5"}, "")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body["min_connected_bins"], "not enough connected bins")
}

func TestHeaderDrivenBalanceCeiling(t *testing.T) {
	h := &health.Handler{
		Topology: &fakeTopology{},
		Balances: &fakeBalances{balances: map[string]int64{string(pad32("peer-a")): 100}},
	}

	status, body := doRequest(t, h, []string{"balance_ceiling200"}, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "OK", body["balance_ceiling"])

	status, body = doRequest(t, h, []string{"balance_ceiling50"}, "")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body["balance_ceiling"], "exceeds ceiling")
}

func TestHeaderDrivenMalformedValue(t *testing.T) {
	h := &health.Handler{Topology: &fakeTopology{}, Balances: &fakeBalances{}}
	status, body := doRequest(t, h, []string{"min_peer_countABC"}, "")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body["min_peer_count"], "ERROR")
}

func TestBodyDrivenAllChecksOK(t *testing.T) {
	h := &health.Handler{
		Topology: &fakeTopology{reachable: true, peerCount: 5, snapshot: snapshotWithConnectedBins(4)},
		Balances: &fakeBalances{},
	}
	minPeers := uint(1)
	minBins := uint(2)
	ceiling := uint64(1000)
	bodyBytes, err := json.Marshal(map[string]any{
		"neighborhood":       true,
		"min_peer_count":     minPeers,
		"min_connected_bins": minBins,
		"balance_ceiling":    ceiling,
	})
	require.NoError(t, err)

	status, body := doRequest(t, h, nil, string(bodyBytes))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "OK", body["query"])
	require.Equal(t, "OK", body["neighborhood"])
	require.Equal(t, "OK", body["min_peer_count"])
	require.Equal(t, "OK", body["min_connected_bins"])
	require.Equal(t, "OK", body["balance_ceiling"])
}

func TestBodyDrivenMalformedJSON(t *testing.T) {
	h := &health.Handler{Topology: &fakeTopology{}, Balances: &fakeBalances{}}
	status, body := doRequest(t, h, nil, "{not json")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body["query"], "ERROR")
}
