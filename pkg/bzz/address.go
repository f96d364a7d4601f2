// Package bzz implements the validated peer address: the binding between
// a node's overlay (topology) address, its Ethereum signing address, and
// its one-or-more underlay (transport) addresses, together with the
// signature that proves the binding (spec.md §3, invariants I1-I3; §6,
// validation rules V1-V5).
package bzz

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/ethersphere/beenode/pkg/crypto"
	"github.com/ethersphere/beenode/pkg/p2p"
	"github.com/ethersphere/beenode/pkg/swarm"
)

// NonceSize is the byte length of the overlay-derivation nonce.
const NonceSize = 32

// MaxWelcomeMessageLength is the maximum length, in bytes, of a welcome
// message attached to a handshake (spec.md §6 validation rule V1).
const MaxWelcomeMessageLength = 140

// handshakeDigestPrefix domain-separates the handshake signing digest
// from any other signature this key might produce.
const handshakeDigestPrefix = "bee-handshake-"

var (
	// ErrWelcomeMessageTooLong is V1: welcome_message exceeds
	// MaxWelcomeMessageLength bytes.
	ErrWelcomeMessageTooLong = fmt.Errorf("welcome message exceeds %d bytes", MaxWelcomeMessageLength)
	// ErrOverlayMismatch is V4: the declared overlay does not match
	// keccak256(ethereum_address || network_id || nonce).
	ErrOverlayMismatch = errors.New("overlay address does not match derivation from ethereum address and nonce")
	// ErrSignatureInvalid is V3: the signature does not recover to the
	// claimed Ethereum address.
	ErrSignatureInvalid = errors.New("signature does not recover to claimed ethereum address")
	// ErrNetworkIDMismatch is V5.
	ErrNetworkIDMismatch = errors.New("network id mismatch")
)

// Address is a fully validated peer address: the overlay/underlay/chain
// binding exchanged and checked during the handshake (spec.md §3).
type Address struct {
	Overlay         swarm.Address
	Underlays       []ma.Multiaddr
	Signature       [crypto.SignatureLength]byte
	Nonce           [NonceSize]byte
	EthereumAddress [crypto.AddressLength]byte
	FullNode        bool
	WelcomeMessage  string
}

// SigningDigest computes the keccak256 digest signed over an underlay
// list, overlay address, and network id: the binding proven by
// Address.Signature (spec.md §6).
//
//	keccak256("bee-handshake-" ‖ serialize(underlays) ‖ overlay ‖ be64(network_id))
func SigningDigest(underlays []ma.Multiaddr, overlay swarm.Address, networkID uint64) []byte {
	data := make([]byte, 0, len(handshakeDigestPrefix)+swarm.AddressLength+8+64)
	data = append(data, handshakeDigestPrefix...)
	data = append(data, p2p.SerializeUnderlays(underlays)...)
	data = append(data, overlay.Bytes()...)
	data = appendBE64(data, networkID)
	return ethcrypto.Keccak256(data)
}

func appendBE64(b []byte, v uint64) []byte {
	return append(b, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// DeriveOverlay computes the overlay address for an Ethereum address,
// network id, and nonce (spec.md §3, invariant I1):
//
//	overlay = keccak256(ethereum_address ‖ le64(network_id) ‖ nonce)
func DeriveOverlay(ethAddr [crypto.AddressLength]byte, networkID uint64, nonce [NonceSize]byte) swarm.Address {
	data := make([]byte, 0, crypto.AddressLength+8+NonceSize)
	data = append(data, ethAddr[:]...)
	data = appendLE64(data, networkID)
	data = append(data, nonce[:]...)
	return swarm.MustNewAddress(ethcrypto.Keccak256(data))
}

func appendLE64(b []byte, v uint64) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// NewSignedAddress builds and signs an Address for this node: it derives
// the overlay from signer's Ethereum address, nonce, and networkID, then
// signs the handshake digest over underlays/overlay/networkID.
func NewSignedAddress(signer crypto.Signer, underlays []ma.Multiaddr, nonce [NonceSize]byte, networkID uint64, fullNode bool, welcomeMessage string) (*Address, error) {
	if len(welcomeMessage) > MaxWelcomeMessageLength {
		return nil, ErrWelcomeMessageTooLong
	}
	ethAddr, err := signer.EthereumAddress()
	if err != nil {
		return nil, fmt.Errorf("derive ethereum address: %w", err)
	}
	overlay := DeriveOverlay(ethAddr, networkID, nonce)
	digest := SigningDigest(underlays, overlay, networkID)
	sig, err := signer.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("sign handshake digest: %w", err)
	}
	addr := &Address{
		Overlay:         overlay,
		Underlays:       underlays,
		Nonce:           nonce,
		EthereumAddress: ethAddr,
		FullNode:        fullNode,
		WelcomeMessage:  welcomeMessage,
	}
	copy(addr.Signature[:], sig)
	return addr, nil
}

// ParseAndValidate reconstructs an Address from wire-received fields and
// applies validation rules V1 (welcome message length), V3 (signature
// recovers to ethereumAddress), V4 (overlay matches derivation), and V5
// (networkID matches the caller's expectation). V2 (every underlay
// parses as a valid multiaddr) is enforced by the caller deserializing
// underlayBytes before calling this function.
func ParseAndValidate(overlay swarm.Address, underlays []ma.Multiaddr, signature [crypto.SignatureLength]byte, nonce [NonceSize]byte, fullNode bool, welcomeMessage string, expectedNetworkID uint64) (*Address, error) {
	if len(welcomeMessage) > MaxWelcomeMessageLength {
		return nil, ErrWelcomeMessageTooLong
	}
	digest := SigningDigest(underlays, overlay, expectedNetworkID)
	ethAddr, err := crypto.Recover(signature[:], digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSignatureInvalid, err)
	}
	recoveredOverlay := DeriveOverlay(ethAddr, expectedNetworkID, nonce)
	if !recoveredOverlay.Equal(overlay) {
		return nil, ErrOverlayMismatch
	}
	return &Address{
		Overlay:         overlay,
		Underlays:       underlays,
		Signature:       signature,
		Nonce:           nonce,
		EthereumAddress: ethAddr,
		FullNode:        fullNode,
		WelcomeMessage:  welcomeMessage,
	}, nil
}

// ShortString returns a truncated representation suitable for logging.
func (a *Address) ShortString() string {
	return a.Overlay.String()[:18]
}
