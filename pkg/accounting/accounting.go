// Package accounting tracks per-peer indebtedness in abstract
// accounting units (AU), gates data transfers against debt, and signals
// the topology manager when a peer's debt crosses the disconnect
// threshold (spec.md §4.6).
package accounting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethersphere/beenode/pkg/metrics"
	"github.com/ethersphere/beenode/pkg/swarm"
)

// Direction of a bandwidth event (spec.md §4.6, "record(bytes,
// direction)").
type Direction int

const (
	// Upload means we delivered bytes to the peer: their debt to us
	// grows, so balance += bytes.
	Upload Direction = iota
	// Download means the peer delivered bytes to us: our debt to them
	// grows, so balance -= bytes.
	Download
)

// DisconnectEvent is emitted when a peer's balance breaches
// -disconnect_threshold, so the topology manager can close the
// connection (spec.md §4.6, "Disconnection").
type DisconnectEvent struct {
	Peer    swarm.Address
	Balance int64
}

// Settler drives a settlement protocol (pseudosettle or SWAP) for a
// peer, shifting debt off that peer's balance. pkg/settlement/* provide
// concrete implementations; the core only depends on this interface
// (spec.md §4.6, "Cheque semantics ... are opaque to the core").
type Settler interface {
	Settle(ctx context.Context, peer swarm.Address, balance int64) error
}

// noopSettler is used when Config.Mode is ModeNone.
type noopSettler struct{}

func (noopSettler) Settle(context.Context, swarm.Address, int64) error { return nil }

// Accounting is the factory (spec.md §4.6, "AvailabilityAccounting")
// that creates and owns per-peer handles.
type Accounting struct {
	cfg     Config
	settler Settler
	metrics *metrics.AccountingMetrics

	mu    sync.RWMutex
	peers map[string]*peerState

	events chan DisconnectEvent
}

// New constructs an Accounting factory. settler may be nil, in which
// case settlement calls are a no-op (ModeNone).
func New(cfg Config, settler Settler) *Accounting {
	if settler == nil {
		settler = noopSettler{}
	}
	return &Accounting{
		cfg:     cfg,
		settler: settler,
		peers:   make(map[string]*peerState),
		events:  make(chan DisconnectEvent, 256),
	}
}

// SetMetrics wires a metrics recorder into this factory. Nil-safe
// methods on *metrics.AccountingMetrics mean an unset recorder is a
// no-op.
func (a *Accounting) SetMetrics(m *metrics.AccountingMetrics) {
	a.metrics = m
}

// Events returns the channel DisconnectEvents are published on.
func (a *Accounting) Events() <-chan DisconnectEvent { return a.events }

func (a *Accounting) stateFor(peer swarm.Address, fullNode bool) *peerState {
	key := peer.String()

	a.mu.RLock()
	state, ok := a.peers[key]
	a.mu.RUnlock()
	if ok {
		return state
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if state, ok := a.peers[key]; ok {
		return state
	}
	state = newPeerState(peer, fullNode, a.cfg)
	a.peers[key] = state
	return state
}

// RemovePeer discards accounting state for a disconnected peer.
func (a *Accounting) RemovePeer(peer swarm.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.peers, peer.String())
}

// Peers returns the overlays of every peer with accounting state.
func (a *Accounting) Peers() []swarm.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]swarm.Address, 0, len(a.peers))
	for _, s := range a.peers {
		out = append(out, s.peer)
	}
	return out
}

// PeerAvailability is the per-peer handle each protocol stream clones
// and uses without further lookup (spec.md §4.6).
type PeerAvailability struct {
	acc   *Accounting
	state *peerState
}

// ForPeer returns (creating if necessary) the handle for peer.
func (a *Accounting) ForPeer(peer swarm.Address, fullNode bool) *PeerAvailability {
	return &PeerAvailability{acc: a, state: a.stateFor(peer, fullNode)}
}

// Peer returns the overlay this handle accounts for.
func (h *PeerAvailability) Peer() swarm.Address { return h.state.peer }

// Balance returns the current balance. Positive means the peer owes us.
func (h *PeerAvailability) Balance() int64 { return h.state.Balance() }

// Record applies an immediate, unreserved balance change for bytes
// transferred in direction (spec.md §4.6: "atomic, lock-free"). After
// recording, if the balance breaches -disconnect_threshold a
// DisconnectEvent is published.
func (h *PeerAvailability) Record(bytes uint64, direction Direction) {
	delta := int64(bytes)
	if direction == Download {
		delta = -delta
	}
	newBalance := h.state.addBalance(delta)
	h.acc.metrics.ObserveBalance(newBalance)

	if newBalance < -int64(h.state.disconnectThreshold) {
		h.acc.metrics.IncDisconnect()
		select {
		case h.acc.events <- DisconnectEvent{Peer: h.state.peer, Balance: newBalance}:
		default:
			log.Warn("accounting: disconnect event channel full, dropping", "peer", h.state.peer)
		}
	}
}

// Allow reports whether debiting bytes now (a prospective receive)
// would stay within -disconnect_threshold once the current
// reservations settle (spec.md §4.6).
func (h *PeerAvailability) Allow(bytes uint64) bool {
	return h.state.projectedBalance(int64(bytes)) >= -int64(h.state.disconnectThreshold)
}

// PrepareReceive reserves price for an incoming chunk and returns an
// action the caller must Apply on success or Cancel on failure.
func (h *PeerAvailability) PrepareReceive(price uint64) *ReceiveAction {
	return newReceiveAction(h.state, price)
}

// PrepareProvide reserves shadow price for an outgoing chunk and
// returns an action the caller must Apply on success or Cancel on
// failure.
func (h *PeerAvailability) PrepareProvide(price uint64) *ProvideAction {
	return newProvideAction(h.state, price)
}

// shouldSoftSettle reports whether our debt to the peer has crossed the
// early-payment trigger (spec.md §4.6, "Soft (pseudosettle)").
func (h *PeerAvailability) shouldSoftSettle() bool {
	balance := h.state.Balance()
	if balance >= 0 {
		return false
	}
	debt := uint64(-balance)
	triggerAt := h.state.paymentThreshold * (100 - h.acc.cfg.EarlyPaymentPercent) / 100
	return debt >= triggerAt
}

// Settle drives the configured settlement protocol for this peer if our
// debt has crossed the soft-settlement trigger, or unconditionally if
// force is true (spec.md §4.6, "Settlement triggers").
func (h *PeerAvailability) Settle(ctx context.Context, force bool) error {
	if !force && !h.shouldSoftSettle() {
		return nil
	}
	balance := h.state.Balance()
	if err := h.acc.settler.Settle(ctx, h.state.peer, balance); err != nil {
		h.acc.metrics.IncSettlement(false)
		return fmt.Errorf("accounting: settle %s: %w", h.state.peer, err)
	}
	h.acc.metrics.IncSettlement(true)
	h.state.setLastRefresh(time.Now())
	return nil
}

// DisconnectThreshold returns this peer's (possibly light-node-scaled)
// disconnect threshold.
func (h *PeerAvailability) DisconnectThreshold() uint64 { return h.state.disconnectThreshold }

// PaymentThreshold returns this peer's (possibly light-node-scaled)
// payment threshold.
func (h *PeerAvailability) PaymentThreshold() uint64 { return h.state.paymentThreshold }

// Balance reports peer's current balance, or 0 if no accounting state
// exists for it. Implements the Ledger interface pkg/settlement/*
// settlers depend on.
func (a *Accounting) Balance(peer swarm.Address) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if s, ok := a.peers[peer.String()]; ok {
		return s.Balance()
	}
	return 0
}

// CreditPaid records that we successfully paid peer amount, reducing
// our debt (balance moves toward/through zero).
func (a *Accounting) CreditPaid(peer swarm.Address, amount uint64) {
	a.mu.RLock()
	s, ok := a.peers[peer.String()]
	a.mu.RUnlock()
	if !ok {
		return
	}
	s.addBalance(int64(amount))
}

// CreditReceived records that peer paid us amount, reducing what they
// owe us (balance moves toward/through zero from the other side).
func (a *Accounting) CreditReceived(peer swarm.Address, amount uint64) {
	a.mu.RLock()
	s, ok := a.peers[peer.String()]
	a.mu.RUnlock()
	if !ok {
		return
	}
	s.addBalance(-int64(amount))
}
