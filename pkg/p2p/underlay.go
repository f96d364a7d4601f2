// Package p2p defines the transport-facing abstractions the core depends
// on without owning: multiplexed streams, protocol negotiation by string,
// and the underlay (transport address) serialization shared by the
// handshake and hive wire formats.
package p2p

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// underlayListMagicByte prefixes the zero-or-multiple-address encoding.
// 0x99 is taken as a first byte that no valid multiaddr starts with, so a
// reader distinguishes the two encodings from the first byte alone
// (spec.md §6).
const underlayListMagicByte = 0x99

// ErrEmptyUnderlay reports that no underlay is present. No function in
// this package returns it.
var ErrEmptyUnderlay = errors.New("no underlay present")

// SerializeUnderlays encodes a list of multiaddrs per spec.md §6: a
// single address is written as its raw bytes (backward-compatible with
// single-underlay peers); zero or multiple addresses are written as the
// magic byte 0x99 followed by (uvarint length, multiaddr bytes) pairs.
func SerializeUnderlays(addrs []ma.Multiaddr) []byte {
	if len(addrs) == 1 {
		return addrs[0].Bytes()
	}
	var buf bytes.Buffer
	buf.WriteByte(underlayListMagicByte)
	var lenBuf [binary.MaxVarintLen64]byte
	for _, a := range addrs {
		b := a.Bytes()
		n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
		buf.Write(lenBuf[:n])
		buf.Write(b)
	}
	return buf.Bytes()
}

// DeserializeUnderlays is the inverse of SerializeUnderlays. An empty
// input or input whose first byte is not the magic byte is parsed as a
// single raw multiaddr when non-empty; an empty input yields an empty
// list (permitted for inbound-only peers per spec.md §3 invariant I3).
func DeserializeUnderlays(b []byte) ([]ma.Multiaddr, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if b[0] != underlayListMagicByte {
		addr, err := ma.NewMultiaddrBytes(b)
		if err != nil {
			return nil, fmt.Errorf("parse single underlay: %w", err)
		}
		return []ma.Multiaddr{addr}, nil
	}
	rest := b[1:]
	var out []ma.Multiaddr
	for len(rest) > 0 {
		l, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, fmt.Errorf("malformed underlay list length prefix")
		}
		rest = rest[n:]
		if uint64(len(rest)) < l {
			return nil, fmt.Errorf("malformed underlay list: short entry")
		}
		addr, err := ma.NewMultiaddrBytes(rest[:l])
		if err != nil {
			return nil, fmt.Errorf("parse underlay list entry: %w", err)
		}
		out = append(out, addr)
		rest = rest[l:]
	}
	return out, nil
}

// ParseUnderlays parses a list of multiaddr strings into Multiaddr values,
// validating each (spec.md §3 invariant I3: "every underlay parses as a
// valid multiaddr").
func ParseUnderlays(s []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(s))
	for _, one := range s {
		addr, err := ma.NewMultiaddr(one)
		if err != nil {
			return nil, fmt.Errorf("parse underlay %q: %w", one, err)
		}
		out = append(out, addr)
	}
	return out, nil
}
