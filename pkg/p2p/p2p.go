package p2p

import (
	"context"
	"io"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/ethersphere/beenode/pkg/swarm"
)

// Stream is a single bidirectional, length-framed byte stream negotiated
// for one protocol. The core never owns the transport: it is handed
// streams by the surrounding multiplexed-connection layer (spec.md §1).
type Stream interface {
	io.ReadWriteCloser
	// Headers are the opaque key→bytes map exchanged at stream open, used
	// by the hive "headler" (spec.md §4.4).
	Headers() Headers
}

// Headers is an opaque key→bytes map exchanged when a stream opens.
type Headers map[string][]byte

// Peer identifies a connected remote endpoint together with the
// connection id the transport assigned it. A single overlay address may
// have more than one ConnectionID concurrently (spec.md §5, simultaneous
// dial).
type Peer struct {
	Address      swarm.Address
	ConnectionID string
	FullNode     bool
}

// ReachableNotifier reports a change in a peer's externally-observed
// reachability, used to resolve the NAT-discovery heuristic of spec.md §9.
type ReachableNotifier interface {
	UpdateReachability(observed ma.Multiaddr)
}

// Notifier is implemented by components (the topology manager) that want
// to learn about connect/disconnect events from the transport layer.
type Notifier interface {
	// Connected is called once a peer's connection is fully established
	// (after handshake validation succeeds).
	Connected(ctx context.Context, peer Peer, isInbound bool) error
	// Disconnected is called when a peer's connection is torn down.
	Disconnected(peer Peer)
}

// Streamer opens outbound protocol streams and registers inbound protocol
// handlers. This is the minimal transport-facing contract the handshake
// and hive protocols need; the concrete multiplexed-connection
// implementation is out of scope (spec.md §1).
type Streamer interface {
	// NewStream opens a stream to peer for the named protocol.
	NewStream(ctx context.Context, peer swarm.Address, protocol, version, streamName string) (Stream, error)
	// AddProtocol registers a handler for an inbound protocol stream.
	AddProtocol(spec ProtocolSpec)
}

// StreamHandler processes one inbound stream for a negotiated protocol.
type StreamHandler func(ctx context.Context, peer Peer, stream Stream) error

// StreamSpec names one stream within a protocol and its handler.
type StreamSpec struct {
	Name    string
	Handler StreamHandler
}

// ProtocolSpec groups the streams offered under one protocol identifier
// (spec.md §6: "Stream protocols negotiated by string").
type ProtocolSpec struct {
	Name    string
	Version string
	Streams []StreamSpec
}

// Service is the subset of the transport's peer-connection surface the
// topology manager drives: dialing by underlay and disconnecting by
// overlay address.
type Service interface {
	Streamer
	// Connect dials addr and runs the handshake, returning the
	// authenticated peer on success.
	Connect(ctx context.Context, addr ma.Multiaddr) (*Peer, error)
	// Disconnect tears down every connection to overlay.
	Disconnect(overlay swarm.Address, reason string) error
	// Blocklist bans overlay for the given duration.
	Blocklist(overlay swarm.Address, duration time.Duration, reason string) error
}
