// Package pb holds the wire messages exchanged during the three-way
// handshake (spec.md §4.2, §6): Syn, SynAck, Ack. Each implements
// protobuf.Message by hand since protoc is not available in this build
// (see pkg/p2p/protobuf and DESIGN.md); field numbering follows spec.md
// §6 in declaration order.
package pb

import (
	"github.com/ethersphere/beenode/pkg/p2p/protobuf"
)

// Syn is the dialer's first message: the listener's remote multiaddr as
// observed by the dialer, used to resolve the listener's own externally
// visible address (spec.md §4.2, message 1).
type Syn struct {
	ObservedUnderlay []byte
}

func (m *Syn) Marshal() ([]byte, error) {
	var buf []byte
	if len(m.ObservedUnderlay) > 0 {
		buf = protobuf.AppendBytes(buf, 1, m.ObservedUnderlay)
	}
	return buf, nil
}

func (m *Syn) Unmarshal(b []byte) error {
	fields, err := protobuf.ParseFields(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if f.Num == 1 {
			m.ObservedUnderlay = append([]byte(nil), f.Bytes...)
		}
	}
	return nil
}

// Ack is the validated-peer record exchanged by both sides: the dialer's
// in message 3, the listener's embedded in SynAck's message 2
// (spec.md §4.2, §6). NodeAddress concatenates
// underlays_serialized ‖ overlay(32) ‖ signature(65) ‖ nonce(32).
type Ack struct {
	NodeAddress    []byte
	NetworkID      uint64
	FullNode       bool
	WelcomeMessage string
}

func (m *Ack) Marshal() ([]byte, error) {
	var buf []byte
	if len(m.NodeAddress) > 0 {
		buf = protobuf.AppendBytes(buf, 1, m.NodeAddress)
	}
	buf = protobuf.AppendVarint(buf, 2, m.NetworkID)
	buf = protobuf.AppendBool(buf, 3, m.FullNode)
	if m.WelcomeMessage != "" {
		buf = protobuf.AppendString(buf, 4, m.WelcomeMessage)
	}
	return buf, nil
}

func (m *Ack) Unmarshal(b []byte) error {
	fields, err := protobuf.ParseFields(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.Num {
		case 1:
			m.NodeAddress = append([]byte(nil), f.Bytes...)
		case 2:
			m.NetworkID = f.Varint
		case 3:
			m.FullNode = f.Varint != 0
		case 4:
			m.WelcomeMessage = string(f.Bytes)
		}
	}
	return nil
}

// SynAck is the listener's reply: an echo of the dialer's Syn alongside
// the listener's own Ack (spec.md §4.2, message 2).
type SynAck struct {
	Syn Syn
	Ack Ack
}

func (m *SynAck) Marshal() ([]byte, error) {
	var buf []byte
	synBytes, err := m.Syn.Marshal()
	if err != nil {
		return nil, err
	}
	ackBytes, err := m.Ack.Marshal()
	if err != nil {
		return nil, err
	}
	buf = protobuf.AppendBytes(buf, 1, synBytes)
	buf = protobuf.AppendBytes(buf, 2, ackBytes)
	return buf, nil
}

func (m *SynAck) Unmarshal(b []byte) error {
	fields, err := protobuf.ParseFields(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.Num {
		case 1:
			if err := m.Syn.Unmarshal(f.Bytes); err != nil {
				return err
			}
		case 2:
			if err := m.Ack.Unmarshal(f.Bytes); err != nil {
				return err
			}
		}
	}
	return nil
}
