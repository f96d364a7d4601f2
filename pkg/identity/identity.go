// Package identity turns a signer, nonce, and network spec into a
// stable overlay address, enforcing the creation policy of spec.md
// §4.1: bootnode and client-only nodes may be ephemeral; storer nodes
// must persist their signing key, since their overlay position decides
// which chunks they are responsible for.
package identity

import (
	"crypto/rand"
	"fmt"

	"github.com/ethersphere/beenode/pkg/bzz"
	"github.com/ethersphere/beenode/pkg/crypto"
	"github.com/ethersphere/beenode/pkg/swarm"
)

// NodeType selects the creation policy Ephemeral enforces; Persistent
// takes no NodeType (spec.md §6, "node_type ∈ {Bootnode, Client, Storer}").
type NodeType int

const (
	Bootnode NodeType = iota
	Client
	Storer
)

func (t NodeType) String() string {
	switch t {
	case Bootnode:
		return "bootnode"
	case Client:
		return "client"
	case Storer:
		return "storer"
	default:
		return "unknown"
	}
}

// ErrStorerMustBePersistent is returned when Ephemeral is asked to build an
// ephemeral identity for a Storer node (spec.md §4.1, "storer nodes
// MUST be persistent").
var ErrStorerMustBePersistent = fmt.Errorf("identity: storer nodes must use a persistent keystore")

// Identity owns a signer and derives the stable overlay address and
// handshake signatures from it (spec.md §3, "Identity"). Safe for
// concurrent use: every field is immutable after construction.
type Identity struct {
	signer         crypto.Signer
	nonce          [bzz.NonceSize]byte
	networkID      uint64
	fullNode       bool
	welcomeMessage string

	overlay         swarm.Address
	ethereumAddress [crypto.AddressLength]byte
}

// Config carries the construction parameters common to both Ephemeral
// and Persistent identities.
type Config struct {
	NetworkID      uint64
	FullNode       bool
	WelcomeMessage string
}

// Ephemeral generates a random signing key and random nonce, valid for
// Bootnode and Client node types (spec.md §4.1).
func Ephemeral(nodeType NodeType, cfg Config) (*Identity, error) {
	if nodeType == Storer {
		return nil, ErrStorerMustBePersistent
	}
	signer, err := crypto.GenerateEphemeralSigner()
	if err != nil {
		return nil, fmt.Errorf("identity: generate ephemeral signer: %w", err)
	}
	var nonce [bzz.NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("identity: generate nonce: %w", err)
	}
	return build(signer, nonce, cfg)
}

// Persistent loads (or creates, on first run) an encrypted keystore at
// keystorePath, and a nonce at nonceStore. Any NodeType may use a
// persistent identity; Storer nodes must (spec.md §4.1).
func Persistent(keystorePath, password string, nonceStore NonceStore, cfg Config) (*Identity, error) {
	signer, err := crypto.LoadOrCreatePersistentSigner(keystorePath, password)
	if err != nil {
		return nil, fmt.Errorf("identity: load signer: %w", err)
	}
	nonce, err := nonceStore.LoadOrCreate()
	if err != nil {
		return nil, fmt.Errorf("identity: load nonce: %w", err)
	}
	return build(signer, nonce, cfg)
}

func build(signer crypto.Signer, nonce [bzz.NonceSize]byte, cfg Config) (*Identity, error) {
	ethAddr, err := signer.EthereumAddress()
	if err != nil {
		return nil, fmt.Errorf("identity: derive ethereum address: %w", err)
	}
	overlay := bzz.DeriveOverlay(ethAddr, cfg.NetworkID, nonce)
	return &Identity{
		signer:          signer,
		nonce:           nonce,
		networkID:       cfg.NetworkID,
		fullNode:        cfg.FullNode,
		welcomeMessage:  cfg.WelcomeMessage,
		overlay:         overlay,
		ethereumAddress: ethAddr,
	}, nil
}

// OverlayAddress returns this node's overlay address, deterministic
// from (ethereum_address, network_id, nonce).
func (id *Identity) OverlayAddress() swarm.Address { return id.overlay }

// EthereumAddress returns the Ethereum address backing the signing key.
func (id *Identity) EthereumAddress() [crypto.AddressLength]byte { return id.ethereumAddress }

// Sign produces a 65-byte recoverable secp256k1 signature over digest.
func (id *Identity) Sign(digest []byte) ([]byte, error) { return id.signer.Sign(digest) }

// Signer exposes the underlying signer, e.g. for handshake or cheque
// signing.
func (id *Identity) Signer() crypto.Signer { return id.signer }

// IsFullNode reports whether this identity advertises itself as a full
// node during handshake.
func (id *Identity) IsFullNode() bool { return id.fullNode }

// WelcomeMessage returns the (possibly empty) handshake welcome
// message, always ≤ bzz.MaxWelcomeMessageLength.
func (id *Identity) WelcomeMessage() string { return id.welcomeMessage }

// Nonce returns the 32-byte nonce this identity's overlay was derived
// with.
func (id *Identity) Nonce() [bzz.NonceSize]byte { return id.nonce }

// NetworkID returns the network this identity was constructed for.
func (id *Identity) NetworkID() uint64 { return id.networkID }
