package swap

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	corecrypto "github.com/ethersphere/beenode/pkg/crypto"
)

// signingChequebook is a minimal Chequebook that signs cheques with a
// node's identity key and accepts any incoming cheque whose signature
// recovers to some signer; the signer is not compared with anything. It
// does not talk to an on-chain
// contract: deployment and redemption stay out of scope (spec.md
// §4.6), making this a usable default for nodes that accept SWAP's
// liveness semantics without wiring a real chequebook.
type signingChequebook struct {
	signer corecrypto.Signer
}

// NewSigningChequebook wraps signer as a Chequebook that signs
// outgoing cheques and accepts any well-formed incoming one.
func NewSigningChequebook(signer corecrypto.Signer) Chequebook {
	return &signingChequebook{signer: signer}
}

func chequeDigest(beneficiary [corecrypto.AddressLength]byte, amount uint64) []byte {
	var buf [corecrypto.AddressLength + 8]byte
	copy(buf[:corecrypto.AddressLength], beneficiary[:])
	binary.BigEndian.PutUint64(buf[corecrypto.AddressLength:], amount)
	digest := crypto.Keccak256(buf[:])
	return digest
}

func (c *signingChequebook) Issue(_ context.Context, beneficiary [corecrypto.AddressLength]byte, amount uint64) (Cheque, error) {
	sig, err := c.signer.Sign(chequeDigest(beneficiary, amount))
	if err != nil {
		return Cheque{}, fmt.Errorf("sign cheque: %w", err)
	}
	var cheque Cheque
	cheque.Beneficiary = beneficiary
	cheque.Amount = amount
	copy(cheque.Signature[:], sig)
	return cheque, nil
}

func (c *signingChequebook) Cash(_ context.Context, cheque Cheque) error {
	digest := chequeDigest(cheque.Beneficiary, cheque.Amount)
	if _, err := corecrypto.Recover(cheque.Signature[:], digest); err != nil {
		return fmt.Errorf("recover cheque signer: %w", err)
	}
	return nil
}
