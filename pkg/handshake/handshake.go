// Package handshake implements the three-way SYN/SYNACK/ACK peer
// authentication exchange (spec.md §4.2): the dialer and listener each
// learn the other's validated peer address, and the listener learns its
// own externally-observed underlay from the dialer's echo.
//
// Roles fix message order (dialer speaks first with Syn, listener
// replies with SynAck, dialer closes with Ack), eliminating split-brain
// on who speaks first. Each connection owns an independent run of
// Outbound/Inbound; there is no state shared across connections.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/ethersphere/beenode/pkg/bzz"
	"github.com/ethersphere/beenode/pkg/crypto"
	"github.com/ethersphere/beenode/pkg/handshake/pb"
	"github.com/ethersphere/beenode/pkg/p2p"
	"github.com/ethersphere/beenode/pkg/p2p/protobuf"
	"github.com/ethersphere/beenode/pkg/swarm"
)

// ProtocolName and Version identify the handshake's stream protocol
// (spec.md §6: "Stream protocols negotiated by string").
const (
	ProtocolName = "handshake"
	Version      = "1.0.0"
	StreamName   = "handshake"
)

// DefaultTimeout is the wall-clock budget for one complete handshake
// (spec.md §5: "handshake has a 15-s wall-clock timeout").
const DefaultTimeout = 15 * time.Second

// maxMessageSize bounds an individual handshake frame. Ack carries a
// node address (underlays + overlay + signature + nonce) and a welcome
// message capped at 140 bytes, so this is generous headroom.
const maxMessageSize = 4096

// Sentinel errors, all terminal for the connection (spec.md §4.2).
var (
	ErrNetworkIDMismatch = errors.New("handshake: network id mismatch")
	ErrSignatureInvalid  = errors.New("handshake: signature invalid")
	ErrOverlayMismatch   = errors.New("handshake: overlay mismatch")
	ErrWelcomeTooLong    = errors.New("handshake: welcome message too long")
	ErrConnectionClosed  = errors.New("handshake: connection closed")
	ErrPicky             = errors.New("handshake: peer rejected (picky mode)")
)

// ProtocolError wraps a malformed-bytes failure (spec.md §4.2: "Protocol(string)").
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return "handshake: protocol error: " + e.msg }

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{msg: fmt.Sprintf(format, args...)}
}

// Info is the result of a completed handshake: the remote peer's
// validated address and the observed underlay carried in the exchange's
// Syn. Both sides fill ObservedUnderlay from that Syn.
type Info struct {
	Peer             *bzz.Address
	ObservedUnderlay ma.Multiaddr
}

// Service runs the handshake protocol for one local identity against a
// configured network id.
type Service struct {
	signer         crypto.Signer
	nonce          [bzz.NonceSize]byte
	networkID      uint64
	fullNode       bool
	welcomeMessage string
	advertisable   []ma.Multiaddr
	picky          func(*bzz.Address) bool
}

// New constructs a handshake Service. advertisableUnderlays are this
// node's own underlays, included in the Ack/SynAck this node sends.
// picky, if non-nil, lets the caller reject an otherwise-valid peer
// (e.g. already connected, blocklisted); a nil picky accepts everyone.
func New(signer crypto.Signer, nonce [bzz.NonceSize]byte, networkID uint64, fullNode bool, welcomeMessage string, advertisableUnderlays []ma.Multiaddr, picky func(*bzz.Address) bool) (*Service, error) {
	if len(welcomeMessage) > bzz.MaxWelcomeMessageLength {
		return nil, ErrWelcomeTooLong
	}
	return &Service{
		signer:         signer,
		nonce:          nonce,
		networkID:      networkID,
		fullNode:       fullNode,
		welcomeMessage: welcomeMessage,
		advertisable:   advertisableUnderlays,
		picky:          picky,
	}, nil
}

// Outbound runs the dialer side of the handshake over stream: it sends
// Syn (echoing remoteObservedUnderlay, the address the dialer used to
// reach the listener), reads SynAck, validates the listener's embedded
// Ack, then sends its own Ack.
func (s *Service) Outbound(ctx context.Context, stream p2p.Stream, remoteObservedUnderlay ma.Multiaddr) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	done := make(chan struct{})
	var info *Info
	var err error
	go func() {
		defer close(done)
		info, err = s.outbound(stream, remoteObservedUnderlay)
	}()
	select {
	case <-done:
		return info, err
	case <-ctx.Done():
		_ = stream.Close()
		return nil, fmt.Errorf("%w: %s", ctx.Err(), "outbound handshake timed out")
	}
}

func (s *Service) outbound(stream p2p.Stream, remoteObservedUnderlay ma.Multiaddr) (*Info, error) {
	syn := &pb.Syn{}
	if remoteObservedUnderlay != nil {
		syn.ObservedUnderlay = remoteObservedUnderlay.Bytes()
	}
	if err := protobuf.WriteMessage(stream, syn); err != nil {
		return nil, fmt.Errorf("write syn: %w", err)
	}

	synAck := &pb.SynAck{}
	if err := protobuf.ReadMessage(stream, synAck, maxMessageSize); err != nil {
		return nil, fmt.Errorf("%w: read synack: %s", ErrConnectionClosed, err)
	}

	remotePeer, err := s.validateAck(&synAck.Ack)
	if err != nil {
		return nil, err
	}
	if s.picky != nil && !s.picky(remotePeer) {
		return nil, ErrPicky
	}

	ourAck, err := s.buildAck()
	if err != nil {
		return nil, fmt.Errorf("build ack: %w", err)
	}
	if err := protobuf.WriteMessage(stream, ourAck); err != nil {
		return nil, fmt.Errorf("write ack: %w", err)
	}

	var observed ma.Multiaddr
	if len(synAck.Syn.ObservedUnderlay) > 0 {
		observed, err = ma.NewMultiaddrBytes(synAck.Syn.ObservedUnderlay)
		if err != nil {
			return nil, protocolErrorf("echoed observed underlay: %s", err)
		}
	}

	return &Info{Peer: remotePeer, ObservedUnderlay: observed}, nil
}

// Inbound runs the listener side of the handshake over stream: it reads
// Syn, replies with SynAck (echoing the dialer's Syn plus its own Ack),
// then reads and validates the dialer's final Ack.
func (s *Service) Inbound(ctx context.Context, stream p2p.Stream) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	done := make(chan struct{})
	var info *Info
	var err error
	go func() {
		defer close(done)
		info, err = s.inbound(stream)
	}()
	select {
	case <-done:
		return info, err
	case <-ctx.Done():
		_ = stream.Close()
		return nil, fmt.Errorf("%w: %s", ctx.Err(), "inbound handshake timed out")
	}
}

func (s *Service) inbound(stream p2p.Stream) (*Info, error) {
	syn := &pb.Syn{}
	if err := protobuf.ReadMessage(stream, syn, maxMessageSize); err != nil {
		return nil, fmt.Errorf("%w: read syn: %s", ErrConnectionClosed, err)
	}

	ourAck, err := s.buildAck()
	if err != nil {
		return nil, fmt.Errorf("build ack: %w", err)
	}
	synAck := &pb.SynAck{Syn: *syn, Ack: *ourAck}
	if err := protobuf.WriteMessage(stream, synAck); err != nil {
		return nil, fmt.Errorf("write synack: %w", err)
	}

	ack := &pb.Ack{}
	if err := protobuf.ReadMessage(stream, ack, maxMessageSize); err != nil {
		return nil, fmt.Errorf("%w: read ack: %s", ErrConnectionClosed, err)
	}
	remotePeer, err := s.validateAck(ack)
	if err != nil {
		return nil, err
	}
	if s.picky != nil && !s.picky(remotePeer) {
		return nil, ErrPicky
	}

	var observedUnderlay ma.Multiaddr
	if len(syn.ObservedUnderlay) > 0 {
		observedUnderlay, err = ma.NewMultiaddrBytes(syn.ObservedUnderlay)
		if err != nil {
			return nil, protocolErrorf("observed underlay: %s", err)
		}
	}

	return &Info{Peer: remotePeer, ObservedUnderlay: observedUnderlay}, nil
}

// buildAck signs this node's current address and encodes it as a pb.Ack.
func (s *Service) buildAck() (*pb.Ack, error) {
	addr, err := bzz.NewSignedAddress(s.signer, s.advertisable, s.nonce, s.networkID, s.fullNode, s.welcomeMessage)
	if err != nil {
		return nil, err
	}
	return &pb.Ack{
		NodeAddress:    encodeNodeAddress(addr),
		NetworkID:      s.networkID,
		FullNode:       s.fullNode,
		WelcomeMessage: s.welcomeMessage,
	}, nil
}

// validateAck decodes and validates a received Ack's node address
// against this service's expected network id (spec.md §4.2 rules
// V1-V5).
func (s *Service) validateAck(ack *pb.Ack) (*bzz.Address, error) {
	if len(ack.WelcomeMessage) > bzz.MaxWelcomeMessageLength {
		return nil, ErrWelcomeTooLong
	}
	if ack.NetworkID != s.networkID {
		return nil, ErrNetworkIDMismatch
	}
	underlays, overlay, sig, nonce, err := decodeNodeAddress(ack.NodeAddress)
	if err != nil {
		return nil, protocolErrorf("node address: %s", err)
	}
	addr, err := bzz.ParseAndValidate(overlay, underlays, sig, nonce, ack.FullNode, ack.WelcomeMessage, s.networkID)
	if err != nil {
		switch {
		case errors.Is(err, bzz.ErrOverlayMismatch):
			return nil, ErrOverlayMismatch
		case errors.Is(err, bzz.ErrSignatureInvalid):
			return nil, ErrSignatureInvalid
		default:
			return nil, err
		}
	}
	return addr, nil
}

// encodeNodeAddress concatenates underlays_serialized ‖ overlay(32) ‖
// signature(65) ‖ nonce(32) per spec.md §6.
func encodeNodeAddress(addr *bzz.Address) []byte {
	underlayBytes := p2p.SerializeUnderlays(addr.Underlays)
	out := make([]byte, 0, len(underlayBytes)+swarm.AddressLength+crypto.SignatureLength+bzz.NonceSize)
	out = append(out, underlayBytes...)
	out = append(out, addr.Overlay.Bytes()...)
	out = append(out, addr.Signature[:]...)
	out = append(out, addr.Nonce[:]...)
	return out
}

// decodeNodeAddress is the inverse of encodeNodeAddress. The underlay
// portion has variable length, so it is recovered by trimming the fixed
// trailing overlay+signature+nonce suffix.
func decodeNodeAddress(b []byte) ([]ma.Multiaddr, swarm.Address, [crypto.SignatureLength]byte, [bzz.NonceSize]byte, error) {
	var sig [crypto.SignatureLength]byte
	var nonce [bzz.NonceSize]byte
	tailLen := swarm.AddressLength + crypto.SignatureLength + bzz.NonceSize
	if len(b) < tailLen {
		return nil, swarm.Address{}, sig, nonce, fmt.Errorf("node address too short: %d bytes", len(b))
	}
	underlayBytes := b[:len(b)-tailLen]
	rest := b[len(b)-tailLen:]

	overlay, err := swarm.NewAddress(rest[:swarm.AddressLength])
	if err != nil {
		return nil, swarm.Address{}, sig, nonce, err
	}
	rest = rest[swarm.AddressLength:]
	copy(sig[:], rest[:crypto.SignatureLength])
	rest = rest[crypto.SignatureLength:]
	copy(nonce[:], rest[:bzz.NonceSize])

	underlays, err := p2p.DeserializeUnderlays(underlayBytes)
	if err != nil {
		return nil, swarm.Address{}, sig, nonce, err
	}
	return underlays, overlay, sig, nonce, nil
}

// Protocol returns this service's ProtocolSpec for registration with a
// p2p.Streamer.
func (s *Service) Protocol(handler func(ctx context.Context, peer p2p.Peer, stream p2p.Stream) error) p2p.ProtocolSpec {
	return p2p.ProtocolSpec{
		Name:    ProtocolName,
		Version: Version,
		Streams: []p2p.StreamSpec{
			{Name: StreamName, Handler: handler},
		},
	}
}
