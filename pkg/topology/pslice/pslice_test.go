package pslice_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/swarm"
	"github.com/ethersphere/beenode/pkg/topology/pslice"
)

func addr(b byte) swarm.Address {
	var buf [32]byte
	buf[0] = b
	return swarm.MustNewAddress(buf[:])
}

func TestAddRemove(t *testing.T) {
	base := addr(0x00)
	p := pslice.New(base)

	peer1 := addr(0x80) // PO 0
	peer2 := addr(0x40) // PO 1

	require.True(t, p.Add(peer1))
	require.False(t, p.Add(peer1))
	require.True(t, p.Add(peer2))

	require.Equal(t, 2, p.Len())
	require.True(t, p.Exists(peer1))
	require.True(t, p.Exists(peer2))

	require.True(t, p.Remove(peer1))
	require.False(t, p.Remove(peer1))

	require.Equal(t, 1, p.Len())
	require.False(t, p.Exists(peer1))
	require.True(t, p.Exists(peer2))
}

func TestAddRejectsBase(t *testing.T) {
	base := addr(0x00)
	p := pslice.New(base)
	require.False(t, p.Add(base))
	require.Equal(t, 0, p.Len())
}

func TestBinSize(t *testing.T) {
	base := addr(0x00)
	p := pslice.New(base)

	peer1 := addr(0x80) // PO 0
	peer2 := addr(0xc0) // PO 0
	peer3 := addr(0x40) // PO 1

	p.Add(peer1)
	p.Add(peer2)
	p.Add(peer3)

	require.Equal(t, 2, p.BinSize(0))
	require.Equal(t, 1, p.BinSize(1))
	require.Equal(t, 0, p.BinSize(2))
}

func TestIterByProximityAscOrdersShallowToDeep(t *testing.T) {
	base := addr(0x00)
	p := pslice.New(base)

	shallow := addr(0x80) // PO 0
	deeper := addr(0x01)  // PO 7
	p.Add(shallow)
	p.Add(deeper)

	var seen []uint8
	p.IterByProximityAsc(func(e pslice.BinEntry) bool {
		seen = append(seen, e.PO)
		return true
	})
	require.Len(t, seen, 2)
	require.True(t, seen[0] <= seen[1])
}

func TestIterByProximityDescStopsEarly(t *testing.T) {
	base := addr(0x00)
	p := pslice.New(base)
	p.Add(addr(0x80))
	p.Add(addr(0x40))
	p.Add(addr(0x20))

	count := 0
	p.IterByProximityDesc(func(e pslice.BinEntry) bool {
		count++
		return false
	})
	require.Equal(t, 1, count)
}
