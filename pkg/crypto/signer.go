// Package crypto wraps the secp256k1 signing and address-recovery
// primitives the core needs: the overlay/Ethereum binding in the
// handshake, and in the future cheque signing for SWAP settlement. It
// delegates to github.com/ethereum/go-ethereum/crypto rather than
// reimplementing ECDSA, the same way the production Swarm node does.
package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size, in bytes, of a recoverable secp256k1
// signature (32-byte r, 32-byte s, 1-byte recovery id).
const SignatureLength = 65

// AddressLength is the size, in bytes, of an Ethereum address.
const AddressLength = 20

// ErrInvalidSignatureLength is returned when a signature is not exactly
// SignatureLength bytes.
var ErrInvalidSignatureLength = errors.New("invalid signature length")

// Signer produces recoverable secp256k1 signatures and exposes the
// Ethereum address derived from the signing key. Implementations must be
// safe for concurrent use: signing is CPU-bound and short, and must never
// block on another peer's state.
type Signer interface {
	// Sign signs digest (expected to already be a 32-byte hash) and
	// returns a 65-byte recoverable signature.
	Sign(digest []byte) ([]byte, error)
	// EthereumAddress returns the 20-byte Ethereum address derived from
	// the public key this signer signs for.
	EthereumAddress() ([20]byte, error)
	// PublicKey returns the signer's public key.
	PublicKey() (*ecdsa.PublicKey, error)
}

// Recover recovers the Ethereum address that produced signature over
// digest. It returns an error if the signature is malformed or does not
// recover to a valid public key.
func Recover(signature, digest []byte) ([20]byte, error) {
	var addr [20]byte
	if len(signature) != SignatureLength {
		return addr, fmt.Errorf("%w: got %d bytes", ErrInvalidSignatureLength, len(signature))
	}
	pub, err := ethcrypto.SigToPub(digest, signature)
	if err != nil {
		return addr, fmt.Errorf("recover public key: %w", err)
	}
	copy(addr[:], ethcrypto.PubkeyToAddress(*pub).Bytes())
	return addr, nil
}

// privateKeySigner is a Signer backed by a raw secp256k1 private key held
// in memory. Used for ephemeral identities.
type privateKeySigner struct {
	key *ecdsa.PrivateKey
}

// NewPrivateKeySigner wraps an in-memory private key as a Signer.
func NewPrivateKeySigner(key *ecdsa.PrivateKey) Signer {
	return &privateKeySigner{key: key}
}

// GenerateEphemeralSigner creates a new random secp256k1 signer, used by
// ephemeral (non-persistent) node identities.
func GenerateEphemeralSigner() (Signer, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	return NewPrivateKeySigner(key), nil
}

func (s *privateKeySigner) Sign(digest []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

func (s *privateKeySigner) EthereumAddress() ([20]byte, error) {
	var addr [20]byte
	copy(addr[:], ethcrypto.PubkeyToAddress(s.key.PublicKey).Bytes())
	return addr, nil
}

func (s *privateKeySigner) PublicKey() (*ecdsa.PublicKey, error) {
	return &s.key.PublicKey, nil
}
