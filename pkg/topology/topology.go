// Package topology exposes the abstractions topology-aware components
// (hive, accounting, higher-level protocols) depend on without needing
// to know whether the concrete driver is a Kademlia manager or a test
// double (spec.md §4.3).
package topology

import (
	"errors"
	"io"
	"time"

	"github.com/ethersphere/beenode/pkg/p2p"
	"github.com/ethersphere/beenode/pkg/swarm"
)

var (
	// ErrNotFound is returned when no peer satisfies a query.
	ErrNotFound = errors.New("no peer found")
	// ErrWantSelf is returned by ClosestPeer when the local node is
	// itself closest to the target address.
	ErrWantSelf = errors.New("node wants self")
	// ErrOversaturated names the condition where every applicable bin is
	// already at its saturation watermark. AddPeers has no error result,
	// so it never returns this error.
	ErrOversaturated = errors.New("oversaturated")
)

// Driver is the full surface the topology manager exposes to the rest
// of the node.
type Driver interface {
	p2p.Notifier
	PeerAdder
	ClosestPeerer
	PeerIterator
	SubscribeTopologyChange() (c <-chan struct{}, unsubscribe func())
	io.Closer
	Halter
	Snapshot() *KadParams
	IsReachable() bool
	SetStorageRadiuser
	PeersCounter
	UpdatePeerHealth(addr swarm.Address, healthy bool, latency time.Duration)
}

// PeerAdder accepts newly discovered peers into the topology's backlog
// for the manage loop to evaluate for connection.
type PeerAdder interface {
	AddPeers(addr ...swarm.Address)
}

// ClosestPeerer answers proximity queries against the connected peer
// set.
type ClosestPeerer interface {
	// ClosestPeer returns the closest connected peer to addr, ignoring
	// any address in skipPeers. Returns ErrWantSelf if the local node is
	// closest, ErrNotFound if no peer satisfies f.
	ClosestPeer(addr swarm.Address, includeSelf bool, f Select, skipPeers ...swarm.Address) (peerAddr swarm.Address, err error)
}

// PeerIterator allows iteration over connected peers by bin order.
type PeerIterator interface {
	// EachConnectedPeer iterates from the closest bin to the farthest.
	EachConnectedPeer(EachPeerFunc, Select) error
	// EachConnectedPeerRev iterates from the farthest bin to the closest.
	EachConnectedPeerRev(EachPeerFunc, Select) error
}

// Select filters the different iterator/query predicates. Fields take
// effect only when true; multiple selected fields are ANDed.
type Select struct {
	Reachable bool
	Healthy   bool
}

// EachPeerFunc is called once per peer during iteration. Returning
// stop=true ends iteration; jumpToNext=true skips the remaining peers
// in the current bin.
type EachPeerFunc func(addr swarm.Address, bin uint8) (stop, jumpToNext bool, err error)

// PeerInfo is a snapshot of one peer's state exposed for status/RPC use.
type PeerInfo struct {
	Address swarm.Address       `json:"address"`
	Metrics *MetricSnapshotView `json:"metrics,omitempty"`
}

// MetricSnapshotView is a human-readable snapshot of a peer's
// connection metrics (spec.md §4.3, extended peer state).
type MetricSnapshotView struct {
	LastSeenTimestamp          int64   `json:"lastSeenTimestamp"`
	SessionConnectionRetry     uint64  `json:"sessionConnectionRetry"`
	ConnectionTotalDuration    float64 `json:"connectionTotalDuration"`
	SessionConnectionDuration  float64 `json:"sessionConnectionDuration"`
	SessionConnectionDirection string  `json:"sessionConnectionDirection"`
	LatencyEWMA                int64   `json:"latencyEWMA"`
	Reachability               string  `json:"reachability"`
	Healthy                    bool    `json:"healthy"`
}

// BinInfo summarizes one proximity-order bin.
type BinInfo struct {
	BinPopulation     uint        `json:"population"`
	BinConnected      uint        `json:"connected"`
	DisconnectedPeers []*PeerInfo `json:"disconnectedPeers"`
	ConnectedPeers    []*PeerInfo `json:"connectedPeers"`
}

// KadBins holds one BinInfo per proximity order, 0 through swarm.MaxPO.
type KadBins [swarm.MaxPO + 1]BinInfo

// KadParams is a full point-in-time snapshot of the topology manager's
// state, exposed for status/RPC use (spec.md §4.3).
type KadParams struct {
	Base                string    `json:"baseAddr"`
	Population          int       `json:"population"`
	Connected           int       `json:"connected"`
	Timestamp           time.Time `json:"timestamp"`
	NNLowWatermark      int       `json:"nnLowWatermark"`
	Depth               uint8     `json:"depth"`
	Reachability        string    `json:"reachability"`
	NetworkAvailability string    `json:"networkAvailability"`
	Bins                KadBins   `json:"bins"`
	LightNodes          BinInfo   `json:"lightNodes"`
}

// Halter stops the topology manager from initiating new outbound
// connections while still servicing inbound ones.
type Halter interface {
	Halt()
}

// SetStorageRadiuser sets the node's storage radius, which the depth
// calculation folds in as a floor (spec.md §4.3 Open Question).
type SetStorageRadiuser interface {
	SetStorageRadius(uint8)
}

// PeersCounter reports the number of peers matching a Select filter.
type PeersCounter interface {
	PeersCount(Select) int
}

// ScoreFunc ranks a peer for eviction purposes: higher scores are kept
// over lower ones when a bin must shed a peer (spec.md §4.3, eviction
// policy; §9 Open Question on scoring weights).
type ScoreFunc func(addr swarm.Address) float64
