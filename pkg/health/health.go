// Package health implements the node's health/status query contract:
// the one HTTP surface spec.md §1 explicitly retains. A request enables
// a subset of independent checks either via repeated X-BEE-HEALTHCHECK
// headers or a JSON request body, and gets back a JSON object reporting
// each check as "OK", "ERROR: <reason>", or "DISABLED" when the request
// did not enable it.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethersphere/beenode/pkg/swarm"
	"github.com/ethersphere/beenode/pkg/topology"
)

const healthHeader = "X-BEE-HEALTHCHECK"

const (
	neighborhood     = "neighborhood"
	minPeerCount     = "min_peer_count"
	minConnectedBins = "min_connected_bins"
	balanceCeiling   = "balance_ceiling"
)

// TopologySnapshotter is the subset of topology.Driver the health
// checks read from.
type TopologySnapshotter interface {
	Snapshot() *topology.KadParams
	IsReachable() bool
	PeersCount(topology.Select) int
}

// BalanceSource is the subset of accounting.Accounting the balance
// ceiling check reads from.
type BalanceSource interface {
	Peers() []swarm.Address
	Balance(swarm.Address) int64
}

// Handler serves the health/status HTTP endpoint.
type Handler struct {
	Topology TopologySnapshotter
	Balances BalanceSource
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	headers := r.Header.Values(healthHeader)
	if len(headers) > 0 {
		h.processFromHeaders(headers, w)
		return
	}
	h.processFromBody(r, w)
}

type requestBody struct {
	Neighborhood     bool    `json:"neighborhood"`
	MinPeerCount     *uint   `json:"min_peer_count"`
	MinConnectedBins *uint   `json:"min_connected_bins"`
	BalanceCeiling   *uint64 `json:"balance_ceiling"`
}

func (h *Handler) processFromBody(r *http.Request, w http.ResponseWriter) {
	result := make(map[string]string)
	ok := true

	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		result["query"] = fmt.Sprintf("ERROR: %s", err)
		writeResult(w, result, false)
		return
	}
	result["query"] = "OK"

	ok = h.report(result, neighborhood, body.Neighborhood, 0, derefUint64(body.BalanceCeiling)) && ok
	ok = h.report(result, minPeerCount, body.MinPeerCount != nil, derefUint(body.MinPeerCount), 0) && ok
	ok = h.report(result, minConnectedBins, body.MinConnectedBins != nil, derefUint(body.MinConnectedBins), 0) && ok
	ok = h.report(result, balanceCeiling, body.BalanceCeiling != nil, 0, derefUint64(body.BalanceCeiling)) && ok

	writeResult(w, result, ok)
}

func (h *Handler) processFromHeaders(headers []string, w http.ResponseWriter) {
	result := make(map[string]string)
	ok := true

	enabledNeighborhood := false
	var minPeers, minBins *uint
	var ceiling *uint64
	var parseErr error

	for _, header := range headers {
		switch {
		case header == neighborhood:
			enabledNeighborhood = true
		case strings.HasPrefix(header, minPeerCount):
			n, err := strconv.Atoi(strings.TrimPrefix(header, minPeerCount))
			if err != nil {
				parseErr = err
				result[minPeerCount] = fmt.Sprintf("ERROR: %s", err)
				continue
			}
			v := uint(n)
			minPeers = &v
		case strings.HasPrefix(header, minConnectedBins):
			n, err := strconv.Atoi(strings.TrimPrefix(header, minConnectedBins))
			if err != nil {
				parseErr = err
				result[minConnectedBins] = fmt.Sprintf("ERROR: %s", err)
				continue
			}
			v := uint(n)
			minBins = &v
		case strings.HasPrefix(header, balanceCeiling):
			n, err := strconv.ParseUint(strings.TrimPrefix(header, balanceCeiling), 10, 64)
			if err != nil {
				parseErr = err
				result[balanceCeiling] = fmt.Sprintf("ERROR: %s", err)
				continue
			}
			ceiling = &n
		}
	}
	_ = parseErr

	ok = h.report(result, neighborhood, enabledNeighborhood, 0, 0) && ok
	ok = h.report(result, minPeerCount, minPeers != nil, derefUint(minPeers), 0) && ok
	ok = h.report(result, minConnectedBins, minBins != nil, derefUint(minBins), 0) && ok
	ok = h.report(result, balanceCeiling, ceiling != nil, 0, derefUint64(ceiling)) && ok

	writeResult(w, result, ok)
}

// report runs check when enabled is true and result doesn't already
// hold a parse error for key, filling result[key] and folding the
// outcome into the running ok flag.
func (h *Handler) report(result map[string]string, key string, enabled bool, n uint, ceiling uint64) bool {
	if _, already := result[key]; already {
		return false
	}
	if !enabled {
		result[key] = "DISABLED"
		return true
	}

	var err error
	switch key {
	case neighborhood:
		err = h.checkNeighborhood()
	case minPeerCount:
		err = h.checkMinPeerCount(n)
	case minConnectedBins:
		err = h.checkMinConnectedBins(n)
	case balanceCeiling:
		err = h.checkBalanceCeiling(ceiling)
	}

	if err != nil {
		result[key] = fmt.Sprintf("ERROR: %s", err)
		return false
	}
	result[key] = "OK"
	return true
}

func (h *Handler) checkNeighborhood() error {
	if !h.Topology.IsReachable() {
		return fmt.Errorf("node is not reachable")
	}
	return nil
}

func (h *Handler) checkMinPeerCount(n uint) error {
	count := h.Topology.PeersCount(topology.Select{})
	if count < int(n) {
		return fmt.Errorf("not enough peers: %d (minimum %d)", count, n)
	}
	return nil
}

func (h *Handler) checkMinConnectedBins(n uint) error {
	snap := h.Topology.Snapshot()
	connected := uint(0)
	for _, bin := range snap.Bins {
		if bin.BinConnected > 0 {
			connected++
		}
	}
	if connected < n {
		return fmt.Errorf("not enough connected bins: %d (minimum %d)", connected, n)
	}
	return nil
}

func (h *Handler) checkBalanceCeiling(ceiling uint64) error {
	for _, peer := range h.Balances.Peers() {
		balance := h.Balances.Balance(peer)
		abs := balance
		if abs < 0 {
			abs = -abs
		}
		if uint64(abs) > ceiling {
			return fmt.Errorf("peer %s balance %d exceeds ceiling %d", peer, balance, ceiling)
		}
	}
	return nil
}

func writeResult(w http.ResponseWriter, result map[string]string, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
	}
	_ = json.NewEncoder(w).Encode(result)
}

func derefUint(p *uint) uint {
	if p == nil {
		return 0
	}
	return *p
}

func derefUint64(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}
