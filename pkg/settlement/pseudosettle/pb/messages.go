// Package pb holds the pseudosettle wire messages: Payment and
// PaymentAck. Amounts are encoded as big-endian bytes with leading
// zeros trimmed, matching the convention the original implementation's
// codec documents for interop with the reference Bee wire format
// (spec.md §4.6, "soft settlement").
package pb

import (
	"github.com/ethersphere/beenode/pkg/p2p/protobuf"
)

// Payment is sent by the debtor to settle (part of) an outstanding
// balance.
type Payment struct {
	Amount []byte
}

func (m *Payment) Marshal() ([]byte, error) {
	var buf []byte
	buf = protobuf.AppendBytes(buf, 1, m.Amount)
	return buf, nil
}

func (m *Payment) Unmarshal(b []byte) error {
	fields, err := protobuf.ParseFields(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if f.Num == 1 {
			m.Amount = append([]byte(nil), f.Bytes...)
		}
	}
	return nil
}

// PaymentAck acknowledges a Payment, echoing the settled amount and the
// creditor's timestamp.
type PaymentAck struct {
	Amount    []byte
	Timestamp int64
}

func (m *PaymentAck) Marshal() ([]byte, error) {
	var buf []byte
	buf = protobuf.AppendBytes(buf, 1, m.Amount)
	buf = protobuf.AppendVarint(buf, 2, uint64(m.Timestamp))
	return buf, nil
}

func (m *PaymentAck) Unmarshal(b []byte) error {
	fields, err := protobuf.ParseFields(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.Num {
		case 1:
			m.Amount = append([]byte(nil), f.Bytes...)
		case 2:
			m.Timestamp = int64(f.Varint)
		}
	}
	return nil
}
