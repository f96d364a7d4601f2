// Package pslice stores peers grouped into proximity-order bins relative
// to a base address: bin i holds every peer whose proximity to base is
// i (spec.md §4.3). Each bin has its own lock, so operations on distinct
// bins never contend; taking a whole-topology snapshot takes every
// bin's lock in ascending order to avoid deadlock (spec.md §5).
package pslice

import (
	"sync"

	"github.com/ethersphere/beenode/pkg/swarm"
)

// NumBins is the number of proximity-order bins: one per PO value
// 0 through swarm.MaxPO inclusive.
const NumBins = swarm.MaxPO + 1

// PSlice is a proximity-ordered peer set. The zero value is not usable;
// construct with New.
type PSlice struct {
	base swarm.Address
	bins [NumBins]bin
}

type bin struct {
	mu    sync.RWMutex
	peers []swarm.Address
}

// New creates a PSlice with the given base address.
func New(base swarm.Address) *PSlice {
	return &PSlice{base: base}
}

// Base returns the base address peers are bucketed relative to.
func (p *PSlice) Base() swarm.Address {
	return p.base
}

// Proximity returns the proximity order of other relative to the base
// address.
func (p *PSlice) Proximity(other swarm.Address) uint8 {
	return p.base.Proximity(other)
}

// Add inserts peer into its bin. Returns false if peer equals the base
// address or is already present.
func (p *PSlice) Add(peer swarm.Address) bool {
	if peer.Equal(p.base) {
		return false
	}
	b := &p.bins[p.Proximity(peer)]
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.peers {
		if existing.Equal(peer) {
			return false
		}
	}
	b.peers = append(b.peers, peer)
	return true
}

// Remove removes peer from its bin. Returns false if peer was not
// present.
func (p *PSlice) Remove(peer swarm.Address) bool {
	b := &p.bins[p.Proximity(peer)]
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.peers {
		if existing.Equal(peer) {
			last := len(b.peers) - 1
			b.peers[i] = b.peers[last]
			b.peers = b.peers[:last]
			return true
		}
	}
	return false
}

// Exists reports whether peer is present.
func (p *PSlice) Exists(peer swarm.Address) bool {
	b := &p.bins[p.Proximity(peer)]
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, existing := range b.peers {
		if existing.Equal(peer) {
			return true
		}
	}
	return false
}

// BinSize returns the number of peers in bin po.
func (p *PSlice) BinSize(po uint8) int {
	b := &p.bins[po]
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

// Len returns the total number of peers across all bins.
func (p *PSlice) Len() int {
	total := 0
	for i := range p.bins {
		b := &p.bins[i]
		b.mu.RLock()
		total += len(b.peers)
		b.mu.RUnlock()
	}
	return total
}

// IsEmpty reports whether the PSlice holds no peers.
func (p *PSlice) IsEmpty() bool {
	return p.Len() == 0
}

// PeersInBin returns a copy of the peers in bin po.
func (p *PSlice) PeersInBin(po uint8) []swarm.Address {
	b := &p.bins[po]
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]swarm.Address, len(b.peers))
	copy(out, b.peers)
	return out
}

// BinEntry pairs a peer with its proximity order, yielded by the
// IterByProximity family.
type BinEntry struct {
	PO   uint8
	Peer swarm.Address
}

// IterByProximityAsc calls fn once per peer, visiting bin 0 (shallowest)
// through bin NumBins-1 (deepest, including self-proximity). Stops early
// if fn returns false.
func (p *PSlice) IterByProximityAsc(fn func(BinEntry) bool) {
	for po := uint8(0); po < NumBins; po++ {
		if !p.iterBin(po, fn) {
			return
		}
	}
}

// IterByProximityDesc is IterByProximityAsc in reverse bin order.
func (p *PSlice) IterByProximityDesc(fn func(BinEntry) bool) {
	for po := int(NumBins) - 1; po >= 0; po-- {
		if !p.iterBin(uint8(po), fn) {
			return
		}
	}
}

func (p *PSlice) iterBin(po uint8, fn func(BinEntry) bool) bool {
	for _, peer := range p.PeersInBin(po) {
		if !fn(BinEntry{PO: po, Peer: peer}) {
			return false
		}
	}
	return true
}

// AllPeers returns every peer across all bins as a flat slice.
func (p *PSlice) AllPeers() []swarm.Address {
	out := make([]swarm.Address, 0, p.Len())
	p.IterByProximityAsc(func(e BinEntry) bool {
		out = append(out, e.Peer)
		return true
	})
	return out
}

// BinSizes returns the population of every bin, indexed by PO.
func (p *PSlice) BinSizes() [NumBins]int {
	var out [NumBins]int
	for i := range p.bins {
		out[i] = p.BinSize(uint8(i))
	}
	return out
}
