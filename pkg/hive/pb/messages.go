// Package pb holds the hive gossip wire message: Peers, a batch of
// BzzAddress records (spec.md §4.4, §6). Hand-maintained in
// protobuf-wire-compatible form; see pkg/p2p/protobuf.
package pb

import (
	"github.com/ethersphere/beenode/pkg/p2p/protobuf"
)

// BzzAddress is one gossiped peer record on the wire (spec.md §6):
// underlay bytes, signature, overlay, and the nonce needed to
// re-derive and validate the overlay.
type BzzAddress struct {
	Underlay  []byte
	Signature []byte
	Overlay   []byte
	Nonce     []byte
}

func (m *BzzAddress) Marshal() ([]byte, error) {
	var buf []byte
	buf = protobuf.AppendBytes(buf, 1, m.Underlay)
	buf = protobuf.AppendBytes(buf, 2, m.Signature)
	buf = protobuf.AppendBytes(buf, 3, m.Overlay)
	buf = protobuf.AppendBytes(buf, 4, m.Nonce)
	return buf, nil
}

func (m *BzzAddress) Unmarshal(b []byte) error {
	fields, err := protobuf.ParseFields(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.Num {
		case 1:
			m.Underlay = append([]byte(nil), f.Bytes...)
		case 2:
			m.Signature = append([]byte(nil), f.Bytes...)
		case 3:
			m.Overlay = append([]byte(nil), f.Bytes...)
		case 4:
			m.Nonce = append([]byte(nil), f.Bytes...)
		}
	}
	return nil
}

// marshalInto appends this BzzAddress as a length-delimited field
// (used by Peers, whose entries are nested messages).
func (m *BzzAddress) marshalInto(buf []byte, fieldNum int) ([]byte, error) {
	b, err := m.Marshal()
	if err != nil {
		return nil, err
	}
	return protobuf.AppendBytes(buf, fieldNum, b), nil
}

// Peers is the single message the hive protocol sends: a batch of
// gossiped peer records, capped by the caller at MAX_MESSAGE_SIZE
// (spec.md §4.4).
type Peers struct {
	Peers []*BzzAddress
}

func (m *Peers) Marshal() ([]byte, error) {
	var buf []byte
	for _, p := range m.Peers {
		var err error
		buf, err = p.marshalInto(buf, 1)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (m *Peers) Unmarshal(b []byte) error {
	fields, err := protobuf.ParseFields(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if f.Num != 1 {
			continue
		}
		p := &BzzAddress{}
		if err := p.Unmarshal(f.Bytes); err != nil {
			return err
		}
		m.Peers = append(m.Peers, p)
	}
	return nil
}
