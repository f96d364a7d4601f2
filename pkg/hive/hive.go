// Package hive implements the peer-gossip protocol (spec.md §4.4):
// the receiver runs its headler over the stream's headers (the response
// headers it computes are not written back), and the stream initiator
// sends a batch of
// validated-peer records, capped at MaxMessageSize. Received records
// are re-validated and surfaced as DiscoveredPeer events on a bounded,
// drop-oldest broadcast channel for the peer-store consumer.
package hive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/ethersphere/beenode/pkg/bzz"
	"github.com/ethersphere/beenode/pkg/crypto"
	"github.com/ethersphere/beenode/pkg/hive/pb"
	"github.com/ethersphere/beenode/pkg/p2p"
	"github.com/ethersphere/beenode/pkg/p2p/protobuf"
	"github.com/ethersphere/beenode/pkg/swarm"
)

// ProtocolName and StreamName identify the hive stream protocol
// (spec.md §6).
const (
	ProtocolName = "hive"
	Version      = "1.0.0"
	StreamName   = "peers"
)

// MaxMessageSize bounds one Peers frame: 32 KiB accommodates roughly 30
// peer records (spec.md §4.4).
const MaxMessageSize = 32 * 1024

// StreamTimeout is the wall-clock budget for one hive stream exchange
// (spec.md §5: "hive stream has a 60-s timeout").
const StreamTimeout = 60 * time.Second

// broadcastChannelCapacity bounds the DiscoveredPeer event channel;
// slow subscribers lose the oldest events rather than blocking
// ingestion (spec.md §4.4, "Back-pressure").
const broadcastChannelCapacity = 1024

// defaultBroadcastInterval is the minimum time between two broadcasts
// of newly learned peers to the same connected peer (spec.md §4.4,
// "Per-peer pacing" — a configuration decision, not a correctness
// invariant).
const defaultBroadcastInterval = 10 * time.Second

// DiscoveredPeer is a gossip entry that passed validation, ready for
// the peer-store consumer to persist (spec.md §3, "Discovered-peer
// event").
type DiscoveredPeer struct {
	Overlay   swarm.Address
	Underlays []ma.Multiaddr
	Signature [crypto.SignatureLength]byte
	Nonce     [bzz.NonceSize]byte
}

// Headler computes the response headers to send back from headers
// observed on an inbound stream. Pure, no I/O (spec.md §4.4).
type Headler func(peerHeaders p2p.Headers) p2p.Headers

// NoopHeadler returns empty response headers regardless of input.
func NoopHeadler(p2p.Headers) p2p.Headers { return nil }

// Service runs the hive protocol.
type Service struct {
	networkID uint64
	headler   Headler

	broadcastInterval time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time

	events chan DiscoveredPeer
}

// New constructs a hive Service. headler computes response headers for
// an inbound stream; pass NoopHeadler if the node has nothing to
// negotiate.
func New(networkID uint64, headler Headler) *Service {
	if headler == nil {
		headler = NoopHeadler
	}
	return &Service{
		networkID:         networkID,
		headler:           headler,
		broadcastInterval: defaultBroadcastInterval,
		lastSent:          make(map[string]time.Time),
		events:            make(chan DiscoveredPeer, broadcastChannelCapacity),
	}
}

// Events returns the channel newly validated gossip entries are
// published on.
func (s *Service) Events() <-chan DiscoveredPeer {
	return s.events
}

func (s *Service) publish(d DiscoveredPeer) {
	select {
	case s.events <- d:
	default:
		// channel full: drop the oldest entry to make room, then retry
		// once. A concurrent drain can race this and empty the channel
		// first, which is harmless — the retry send below still
		// succeeds immediately in that case.
		select {
		case <-s.events:
			log.Trace("hive: broadcast channel full, dropping oldest discovered peer")
		default:
		}
		select {
		case s.events <- d:
		default:
		}
	}
}

// Protocol returns this service's ProtocolSpec for registration with a
// p2p.Streamer.
func (s *Service) Protocol() p2p.ProtocolSpec {
	return p2p.ProtocolSpec{
		Name:    ProtocolName,
		Version: Version,
		Streams: []p2p.StreamSpec{
			{Name: StreamName, Handler: s.handleIncoming},
		},
	}
}

// handleIncoming is the inbound stream handler: it passes the stream's
// headers to the headler and discards the result (nothing is written
// back), reads one Peers message, and re-validates and publishes each
// entry.
func (s *Service) handleIncoming(ctx context.Context, peer p2p.Peer, stream p2p.Stream) error {
	ctx, cancel := context.WithTimeout(ctx, StreamTimeout)
	defer cancel()
	defer stream.Close()

	_ = s.headler(stream.Headers())

	done := make(chan error, 1)
	go func() {
		msg := &pb.Peers{}
		if err := protobuf.ReadMessage(stream, msg, MaxMessageSize); err != nil {
			done <- fmt.Errorf("hive: read peers: %w", err)
			return
		}
		s.ingest(msg)
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("hive: stream timeout: %w", ctx.Err())
	}
}

// ingest re-validates every entry in msg (V1-V4) and publishes the
// valid ones; invalid entries are dropped and logged at trace level.
func (s *Service) ingest(msg *pb.Peers) {
	for _, entry := range msg.Peers {
		d, err := s.validateEntry(entry)
		if err != nil {
			log.Trace("hive: dropping invalid gossip entry", "err", err)
			continue
		}
		s.publish(d)
	}
}

func (s *Service) validateEntry(entry *pb.BzzAddress) (DiscoveredPeer, error) {
	if len(entry.Overlay) != swarm.AddressLength {
		return DiscoveredPeer{}, fmt.Errorf("bad overlay length: %d", len(entry.Overlay))
	}
	overlay, err := swarm.NewAddress(entry.Overlay)
	if err != nil {
		return DiscoveredPeer{}, err
	}
	if len(entry.Signature) != crypto.SignatureLength {
		return DiscoveredPeer{}, fmt.Errorf("bad signature length: %d", len(entry.Signature))
	}
	if len(entry.Nonce) != bzz.NonceSize {
		return DiscoveredPeer{}, fmt.Errorf("bad nonce length: %d", len(entry.Nonce))
	}
	underlays, err := p2p.DeserializeUnderlays(entry.Underlay)
	if err != nil {
		return DiscoveredPeer{}, fmt.Errorf("underlay: %w", err)
	}

	var sig [crypto.SignatureLength]byte
	copy(sig[:], entry.Signature)
	var nonce [bzz.NonceSize]byte
	copy(nonce[:], entry.Nonce)

	validated, err := bzz.ParseAndValidate(overlay, underlays, sig, nonce, true, "", s.networkID)
	if err != nil {
		return DiscoveredPeer{}, err
	}

	return DiscoveredPeer{
		Overlay:   validated.Overlay,
		Underlays: validated.Underlays,
		Signature: sig,
		Nonce:     nonce,
	}, nil
}

// BroadcastPeers sends records to peer over stream, honoring per-peer
// pacing and the MaxMessageSize cap (spec.md §4.4). Records beyond the
// cap are silently left for a subsequent broadcast.
func (s *Service) BroadcastPeers(ctx context.Context, peer swarm.Address, stream p2p.Stream, records []*bzz.Address) error {
	ctx, cancel := context.WithTimeout(ctx, StreamTimeout)
	defer cancel()
	defer stream.Close()

	key := peer.String()
	s.mu.Lock()
	if last, ok := s.lastSent[key]; ok && timeNow().Sub(last) < s.broadcastInterval {
		s.mu.Unlock()
		return nil
	}
	s.lastSent[key] = timeNow()
	s.mu.Unlock()

	msg := &pb.Peers{}
	size := 0
	for _, addr := range records {
		entry := toWireEntry(addr)
		entryBytes, err := entry.Marshal()
		if err != nil {
			return fmt.Errorf("hive: marshal entry: %w", err)
		}
		framed := len(protobuf.AppendBytes(nil, 1, entryBytes))
		if size+framed > MaxMessageSize {
			break
		}
		msg.Peers = append(msg.Peers, entry)
		size += framed
	}

	done := make(chan error, 1)
	go func() { done <- protobuf.WriteMessage(stream, msg) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("hive: broadcast timeout: %w", ctx.Err())
	}
}

func toWireEntry(addr *bzz.Address) *pb.BzzAddress {
	return &pb.BzzAddress{
		Underlay:  p2p.SerializeUnderlays(addr.Underlays),
		Signature: append([]byte(nil), addr.Signature[:]...),
		Overlay:   addr.Overlay.Bytes(),
		Nonce:     append([]byte(nil), addr.Nonce[:]...),
	}
}

var timeNow = time.Now
