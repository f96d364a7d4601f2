package kademlia

import "time"

// Config holds the per-bin watermarks and manage-loop tuning parameters
// (spec.md §4.3).
type Config struct {
	// LowWatermark is the minimum peers a bin needs to count toward
	// depth.
	LowWatermark int
	// SaturationPeers is the target capacity per bin; the manage loop
	// stops dialing once a bin reaches it.
	SaturationPeers int
	// HighWatermark is the hard cap on full-node peers per bin.
	HighWatermark int
	// ClientReservedSlots is extra per-bin capacity reserved for light
	// (non-full) nodes above HighWatermark.
	ClientReservedSlots int
	// MaxPendingConnections bounds total concurrent outbound dials.
	MaxPendingConnections int
	// ManageInterval is how often the manage loop runs.
	ManageInterval time.Duration
	// MaxConnectAttempts is how many failed dials a known peer tolerates
	// before being forgotten. The count is not reset by a successful
	// connection.
	MaxConnectAttempts int
	// NeighborhoodMaxConnectAttempts is the more generous attempt bound
	// applied to peers inside the current neighborhood (PO >= depth).
	NeighborhoodMaxConnectAttempts int
	// NNLowWatermark is the minimum number of connected peers in the
	// deepest non-empty bins that counts as a full neighborhood.
	NNLowWatermark int
	// DialRatePerSecond caps the sustained rate of outbound dial
	// attempts across all bins, so a cold-started node with a large
	// known-peer backlog doesn't open a burst of simultaneous
	// connections (spec.md §9, "Dynamic dispatch" admission policy
	// applies equally to self-throttling).
	DialRatePerSecond float64
	// DialBurst is the maximum instantaneous burst above
	// DialRatePerSecond the limiter allows.
	DialBurst int
}

// DefaultConfig returns the watermark table from spec.md §4.3.
func DefaultConfig() Config {
	return Config{
		LowWatermark:                   3,
		SaturationPeers:                8,
		HighWatermark:                  16,
		ClientReservedSlots:            2,
		MaxPendingConnections:          16,
		ManageInterval:                 15 * time.Second,
		MaxConnectAttempts:             4,
		NeighborhoodMaxConnectAttempts: 6,
		NNLowWatermark:                 3,
		DialRatePerSecond:              10,
		DialBurst:                      20,
	}
}
