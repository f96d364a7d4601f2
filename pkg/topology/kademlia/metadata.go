package kademlia

import (
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// connectionState is a peer's position in the lifecycle spec.md §3
// defines:
//
//	Known --dial--> Connecting --ok--> Connected
//	                    |                  |
//	                    +--fail--> Disconnected --retry--> Connecting
//	                                   |
//	                                   +--too many fails--> (removed)
//	any state --ban--> Banned
//	Banned --unban--> Known
type connectionState int

const (
	stateKnown connectionState = iota
	stateConnecting
	stateConnected
	stateDisconnected
	stateBanned
)

// peerMetadata is the topology manager's private bookkeeping for one
// peer, keyed by overlay string (spec.md §3, "Peer state").
type peerMetadata struct {
	overlayStr     string
	underlay       ma.Multiaddr
	fullNode       bool
	state          connectionState
	connIDs        []string // spec.md §5: simultaneous dial can hold more than one
	bin            uint8
	firstSeen      time.Time
	lastSeen       time.Time
	failedAttempts uint32
	banReason      string
	bannedUntil    time.Time
	pinned         bool // neighborhood-pinned: exempt from eviction
	healthy        bool
	lastLatency    time.Duration
}

// addConnID records connID as one of this peer's live connections,
// idempotently (spec.md §5, simultaneous dial: "each side now has two
// connection ids for the peer").
func (m *peerMetadata) addConnID(connID string) {
	for _, id := range m.connIDs {
		if id == connID {
			return
		}
	}
	m.connIDs = append(m.connIDs, connID)
}

// removeConnID discards connID from the live-connections list and
// reports whether any connection remains.
func (m *peerMetadata) removeConnID(connID string) (remaining bool) {
	for i, id := range m.connIDs {
		if id == connID {
			m.connIDs = append(m.connIDs[:i], m.connIDs[i+1:]...)
			break
		}
	}
	return len(m.connIDs) > 0
}

func (m *peerMetadata) banned(now time.Time) bool {
	return m.banReason != "" && now.Before(m.bannedUntil)
}

func (m *peerMetadata) maxAttempts(cfg Config, depth uint8) int {
	if m.bin >= depth {
		return cfg.NeighborhoodMaxConnectAttempts
	}
	return cfg.MaxConnectAttempts
}
