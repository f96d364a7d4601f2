// Package pb holds the SWAP wire message: a signed cheque envelope.
// Cheque contract semantics (chequebook deployment, cumulative payout
// tracking, on-chain cashing) are opaque to this layer; only the
// envelope the core needs to deliver and acknowledge is modeled here
// (spec.md §4.6).
package pb

import (
	"github.com/ethersphere/beenode/pkg/p2p/protobuf"
)

// ChequeEnvelope is the signed-cheque message sent over the SWAP
// stream.
type ChequeEnvelope struct {
	Beneficiary []byte
	Amount      uint64
	Signature   []byte
}

func (m *ChequeEnvelope) Marshal() ([]byte, error) {
	var buf []byte
	buf = protobuf.AppendBytes(buf, 1, m.Beneficiary)
	buf = protobuf.AppendVarint(buf, 2, m.Amount)
	buf = protobuf.AppendBytes(buf, 3, m.Signature)
	return buf, nil
}

func (m *ChequeEnvelope) Unmarshal(b []byte) error {
	fields, err := protobuf.ParseFields(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.Num {
		case 1:
			m.Beneficiary = append([]byte(nil), f.Bytes...)
		case 2:
			m.Amount = f.Varint
		case 3:
			m.Signature = append([]byte(nil), f.Bytes...)
		}
	}
	return nil
}

// ChequeAck acknowledges a cashed (or at least accepted) cheque.
type ChequeAck struct {
	Amount uint64
}

func (m *ChequeAck) Marshal() ([]byte, error) {
	var buf []byte
	buf = protobuf.AppendVarint(buf, 1, m.Amount)
	return buf, nil
}

func (m *ChequeAck) Unmarshal(b []byte) error {
	fields, err := protobuf.ParseFields(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if f.Num == 1 {
			m.Amount = f.Varint
		}
	}
	return nil
}
