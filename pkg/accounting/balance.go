package accounting

import (
	"time"

	"go.uber.org/atomic"

	"github.com/ethersphere/beenode/pkg/internal/assert"
	"github.com/ethersphere/beenode/pkg/swarm"
)

// peerState is the atomic, lock-free accounting record for one peer
// (spec.md §4.6, "Bandwidth peer state"). Positive balance means the
// peer owes us; negative means we owe the peer.
type peerState struct {
	peer     swarm.Address
	fullNode bool

	// paymentThreshold and disconnectThreshold are already scaled by
	// LightFactor at construction time for light peers (spec.md §4.6,
	// "Light peers ... use all thresholds divided by light_factor").
	paymentThreshold    uint64
	disconnectThreshold uint64

	balance        atomic.Int64
	reserved       atomic.Uint64
	shadowReserved atomic.Uint64
	surplus        atomic.Int64
	lastRefresh    atomic.Int64 // unix nanoseconds
}

func newPeerState(peer swarm.Address, fullNode bool, cfg Config) *peerState {
	paymentThreshold := cfg.PaymentThreshold
	disconnectThreshold := cfg.DisconnectThreshold()
	if !fullNode {
		factor := cfg.LightFactor
		if factor == 0 {
			factor = 1
		}
		paymentThreshold /= factor
		disconnectThreshold /= factor
	}
	return &peerState{
		peer:                peer,
		fullNode:            fullNode,
		paymentThreshold:    paymentThreshold,
		disconnectThreshold: disconnectThreshold,
	}
}

func (p *peerState) Balance() int64 { return p.balance.Load() }

// addBalance applies delta and panics through assert on signed 64-bit
// overflow instead of wrapping.
func (p *peerState) addBalance(delta int64) int64 {
	for {
		old := p.balance.Load()
		next := old + delta
		assert.Truef((delta >= 0) == (next >= old), "balance overflow: %d + %d", old, delta)
		if p.balance.CompareAndSwap(old, next) {
			return next
		}
	}
}

func (p *peerState) Reserved() uint64 { return p.reserved.Load() }

func (p *peerState) addReserved(amount uint64) { p.reserved.Add(amount) }

// subReserved releases a prior reservation. The caller is trusted to
// only release what it (or a prepare step acting on its behalf)
// previously reserved, so underflow here is an internal invariant
// violation, not a recoverable error.
func (p *peerState) subReserved(amount uint64) {
	prev := p.reserved.Load()
	assert.Truef(prev >= amount, "reserved underflow: have %d, releasing %d", prev, amount)
	p.reserved.Sub(amount)
}

func (p *peerState) ShadowReserved() uint64 { return p.shadowReserved.Load() }

func (p *peerState) addShadowReserved(amount uint64) { p.shadowReserved.Add(amount) }

func (p *peerState) subShadowReserved(amount uint64) {
	prev := p.shadowReserved.Load()
	assert.Truef(prev >= amount, "shadow reserved underflow: have %d, releasing %d", prev, amount)
	p.shadowReserved.Sub(amount)
}

func (p *peerState) Surplus() int64 { return p.surplus.Load() }

func (p *peerState) addSurplus(amount int64) { p.surplus.Add(amount) }

func (p *peerState) LastRefresh() time.Time {
	ns := p.lastRefresh.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (p *peerState) setLastRefresh(t time.Time) { p.lastRefresh.Store(t.UnixNano()) }

// projectedBalance is the balance a debit of size bytes would leave once
// it and every outstanding reservation settle: bytes and the reserved
// total are both subtracted from the current balance. Used by allow
// (spec.md §4.6).
func (p *peerState) projectedBalance(bytes int64) int64 {
	return p.Balance() - bytes - int64(p.Reserved())
}
