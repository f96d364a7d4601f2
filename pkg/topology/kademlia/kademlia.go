// Package kademlia implements the Kademlia-style proximity-order
// topology manager (spec.md §4.3): it maintains the connected peer set
// bucketed by proximity order, drives active dialing toward saturation,
// computes the node's storage depth, and enforces admission policy
// under connection pressure.
package kademlia

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	multierror "github.com/hashicorp/go-multierror"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ethersphere/beenode/pkg/addressbook"
	"github.com/ethersphere/beenode/pkg/internal/assert"
	"github.com/ethersphere/beenode/pkg/metrics"
	"github.com/ethersphere/beenode/pkg/p2p"
	"github.com/ethersphere/beenode/pkg/swarm"
	"github.com/ethersphere/beenode/pkg/topology"
	"github.com/ethersphere/beenode/pkg/topology/pslice"
)

// EventKind distinguishes the events emitted on the manager's event
// channel (spec.md §4.3, "Emitted events").
type EventKind int

const (
	EventPeerReady EventKind = iota
	EventPeerDisconnected
	EventPeersDiscovered
	EventDepthChanged
	EventConnectionFailed
)

// Event is one topology lifecycle notification.
type Event struct {
	Kind     EventKind
	Overlay  swarm.Address
	FullNode bool
	NewDepth uint8
	Err      error
}

// Admission-policy errors (spec.md §4.3, "Admission policy").
var (
	ErrSaturated    = fmt.Errorf("kademlia: bin saturated")
	ErrNoClientSlot = fmt.Errorf("kademlia: no reserved slot for light node")
)

// Kademlia is the topology.Driver implementation.
type Kademlia struct {
	base        swarm.Address
	p2pSvc      p2p.Service
	addressBook addressbook.Interface
	cfg         Config
	scorer      *scoreTracker
	metrics     *metrics.TopologyMetrics
	dialLimiter *rate.Limiter
	dialGroup   singleflight.Group

	connected *pslice.PSlice
	known     *pslice.PSlice

	mu       sync.RWMutex
	meta     map[string]*peerMetadata
	depth    uint8
	halted   bool
	reachable bool
	radius    uint8

	pendingMu sync.Mutex
	pending   map[string]struct{}

	events   chan Event
	manageC  chan struct{}
	quit     chan struct{}
	wg       sync.WaitGroup

	subMu sync.Mutex
	subs  map[int]chan struct{}
	subID int
}

// New constructs a Kademlia manager and starts its background manage
// loop. Callers must call Close on shutdown.
func New(base swarm.Address, p2pSvc p2p.Service, addressBook addressbook.Interface, cfg Config) *Kademlia {
	dialRate := cfg.DialRatePerSecond
	if dialRate <= 0 {
		dialRate = DefaultConfig().DialRatePerSecond
	}
	dialBurst := cfg.DialBurst
	if dialBurst <= 0 {
		dialBurst = DefaultConfig().DialBurst
	}
	k := &Kademlia{
		base:        base,
		p2pSvc:      p2pSvc,
		addressBook: addressBook,
		cfg:         cfg,
		scorer:      newScoreTracker(DefaultScoreConfig()),
		dialLimiter: rate.NewLimiter(rate.Limit(dialRate), dialBurst),
		connected:   pslice.New(base),
		known:       pslice.New(base),
		meta:        make(map[string]*peerMetadata),
		pending:     make(map[string]struct{}),
		events:      make(chan Event, 256),
		manageC:     make(chan struct{}, 1),
		quit:        make(chan struct{}),
		subs:        make(map[int]chan struct{}),
	}
	k.wg.Add(1)
	go k.manageLoop()
	return k
}

// SetMetrics wires a metrics recorder into the manager. Safe to call
// once before any other method; nil-safe methods on *metrics.TopologyMetrics
// mean an unset recorder (the zero value of this field) is a no-op, so
// callers that don't care about metrics can skip this entirely.
func (k *Kademlia) SetMetrics(m *metrics.TopologyMetrics) {
	k.metrics = m
}

// Events returns the channel topology lifecycle events are published
// on.
func (k *Kademlia) Events() <-chan Event {
	return k.events
}

func (k *Kademlia) emit(ev Event) {
	select {
	case k.events <- ev:
	default:
		log.Warn("kademlia: event channel full, dropping event", "kind", ev.Kind)
	}
}

func (k *Kademlia) triggerManage() {
	select {
	case k.manageC <- struct{}{}:
	case <-k.quit:
	default:
	}
}

// AddPeers adds newly discovered peers to the known-peer backlog for
// the manage loop to evaluate (spec.md §4.3, PeerAdder).
func (k *Kademlia) AddPeers(addrs ...swarm.Address) {
	k.mu.Lock()
	added := false
	for _, addr := range addrs {
		if addr.Equal(k.base) {
			continue // T4: base overlay is never inserted
		}
		key := addr.String()
		if _, ok := k.meta[key]; ok {
			continue
		}
		bin := k.base.Proximity(addr)
		k.meta[key] = &peerMetadata{
			overlayStr: key,
			bin:        bin,
			state:      stateKnown,
			firstSeen:  timeNow(),
			lastSeen:   timeNow(),
		}
		k.known.Add(addr)
		added = true
	}
	k.mu.Unlock()
	if added {
		k.emit(Event{Kind: EventPeersDiscovered})
		k.triggerManage()
	}
}

// Connected implements p2p.Notifier: it applies admission policy to a
// newly-completed connection (spec.md §4.3, "Admission policy").
func (k *Kademlia) Connected(ctx context.Context, peer p2p.Peer, isInbound bool) error {
	if peer.Address.Equal(k.base) {
		return topology.ErrWantSelf
	}
	bin := k.base.Proximity(peer.Address)

	k.mu.Lock()
	if isInbound {
		if reject := k.admit(bin, peer.FullNode); reject != nil {
			k.mu.Unlock()
			return reject
		}
	}

	key := peer.Address.String()
	m, ok := k.meta[key]
	if !ok {
		m = &peerMetadata{overlayStr: key, bin: bin, firstSeen: timeNow()}
		k.meta[key] = m
	}
	m.state = stateConnected
	m.fullNode = peer.FullNode
	m.addConnID(peer.ConnectionID)
	m.lastSeen = timeNow()
	k.connected.Add(peer.Address)
	k.known.Add(peer.Address)
	oldDepth := k.depth
	k.depth = k.recalculateDepth()
	newDepth := k.depth
	binSize := k.connected.BinSize(bin)
	k.mu.Unlock()

	k.metrics.SetBinPopulation(bin, binSize)
	if newDepth != oldDepth {
		k.metrics.IncDepthChange()
		k.emit(Event{Kind: EventDepthChanged, NewDepth: newDepth})
	}

	k.pendingMu.Lock()
	delete(k.pending, key)
	k.pendingMu.Unlock()

	k.scorer.record(key, scoreEventHandshakeSuccess, timeNow())
	k.emit(Event{Kind: EventPeerReady, Overlay: peer.Address, FullNode: peer.FullNode})
	k.notifyTopologyChange()
	k.triggerManage()
	return nil
}

// admit applies the inbound admission policy; must be called with mu
// held. Returns nil to accept, or the rejection error.
func (k *Kademlia) admit(bin uint8, fullNode bool) error {
	full, light := k.connectedCountsInBin(bin)
	if fullNode && full >= k.cfg.HighWatermark {
		if evicted := k.evictFromBin(bin); evicted {
			return nil
		}
		return ErrSaturated
	}
	if !fullNode && light >= k.cfg.ClientReservedSlots {
		return ErrNoClientSlot
	}
	return nil
}

// connectedCountsInBin must be called with mu held.
func (k *Kademlia) connectedCountsInBin(bin uint8) (full, light int) {
	for _, addr := range k.connected.PeersInBin(bin) {
		m, ok := k.meta[addr.String()]
		if !ok {
			continue
		}
		if m.fullNode {
			full++
		} else {
			light++
		}
	}
	return full, light
}

// evictFromBin evicts the lowest-scored, non-pinned, non-banned
// full-node peer outside the neighborhood from bin, if one exists; ties
// go to the least recently seen (spec.md §4.3, "Eviction").
// Must be called with mu held.
func (k *Kademlia) evictFromBin(bin uint8) bool {
	var (
		worstAddr  swarm.Address
		worstScore float64
		worstSeen  time.Time
		found      bool
	)
	now := timeNow()
	for _, addr := range k.connected.PeersInBin(bin) {
		m, ok := k.meta[addr.String()]
		if !ok || !m.fullNode || m.pinned || m.banned(now) || m.bin >= k.depth {
			continue // neighborhood peers are exempt; overflow there is refused
		}
		score := k.scorer.value(addr.String(), now)
		if !found || score < worstScore || (score == worstScore && m.lastSeen.Before(worstSeen)) {
			worstAddr = addr
			worstScore = score
			worstSeen = m.lastSeen
			found = true
		}
	}
	if !found {
		return false
	}
	k.connected.Remove(worstAddr)
	if m, ok := k.meta[worstAddr.String()]; ok {
		m.state = stateDisconnected
	}
	go func() {
		_ = k.p2pSvc.Disconnect(worstAddr, "evicted: bin oversaturated")
	}()
	return true
}

// Disconnected implements p2p.Notifier. When a peer was reached through
// more than one simultaneous connection (spec.md §5), closing one of
// them only drops that connection id; the peer stays Connected via the
// other until its last connection id is removed.
func (k *Kademlia) Disconnected(peer p2p.Peer) {
	key := peer.Address.String()
	bin := k.base.Proximity(peer.Address)

	k.mu.Lock()
	m, ok := k.meta[key]
	if ok && m.removeConnID(peer.ConnectionID) {
		// another connection to this peer is still live.
		k.mu.Unlock()
		return
	}
	k.connected.Remove(peer.Address)
	if ok {
		m.state = stateDisconnected
		m.lastSeen = timeNow()
	}
	oldDepth := k.depth
	k.depth = k.recalculateDepth()
	newDepth := k.depth
	binSize := k.connected.BinSize(bin)
	k.mu.Unlock()

	k.metrics.SetBinPopulation(bin, binSize)
	if newDepth != oldDepth {
		k.metrics.IncDepthChange()
		k.emit(Event{Kind: EventDepthChanged, NewDepth: newDepth})
	}

	k.scorer.record(key, scoreEventDisconnect, timeNow())
	k.emit(Event{Kind: EventPeerDisconnected, Overlay: peer.Address})
	k.notifyTopologyChange()
	k.triggerManage()
}

// recalculateDepth computes the neighborhood depth (spec.md §4.3,
// "Depth calculation"). Must be called with mu held. Enforces T5 by
// construction: callers only invoke this from Connected/Disconnected,
// each of which changes the connected set by exactly one peer.
func (k *Kademlia) recalculateDepth() uint8 {
	if k.connected.Len() <= k.cfg.NNLowWatermark {
		return 0
	}
	for d := uint8(0); d < swarm.MaxPO; d++ {
		if k.connected.BinSize(d) < k.cfg.LowWatermark {
			return d
		}
	}
	return swarm.MaxPO
}

// manageLoop runs until Close, dialing known peers toward saturation
// (spec.md §4.3, "Manage loop").
func (k *Kademlia) manageLoop() {
	defer k.wg.Done()
	ticker := time.NewTicker(k.cfg.ManageInterval)
	defer ticker.Stop()
	for {
		select {
		case <-k.quit:
			return
		case <-ticker.C:
			k.manage()
		case <-k.manageC:
			k.manage()
		}
	}
}

func (k *Kademlia) manage() {
	k.mu.RLock()
	halted := k.halted
	depth := k.depth
	k.mu.RUnlock()
	if halted {
		return
	}

	var errs error
	for bin := uint8(0); bin < pslice.NumBins; bin++ {
		k.pendingMu.Lock()
		slotsLeft := k.cfg.MaxPendingConnections - len(k.pending)
		k.pendingMu.Unlock()
		if slotsLeft <= 0 {
			break
		}

		k.mu.RLock()
		connectedInBin := k.connected.BinSize(bin)
		k.mu.RUnlock()
		if connectedInBin >= k.cfg.SaturationPeers {
			continue
		}

		candidates := k.dialCandidates(bin, depth, slotsLeft)
		for _, addr := range candidates {
			if err := k.dial(addr, depth); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	if errs != nil {
		log.Debug("kademlia: manage iteration completed with errors", "err", errs)
	}
}

// dialCandidates selects up to limit known, non-banned, non-pending,
// not-yet-connected peers from bin. Must not be called with mu held.
func (k *Kademlia) dialCandidates(bin uint8, depth uint8, limit int) []swarm.Address {
	now := timeNow()
	var out []swarm.Address

	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, addr := range k.known.PeersInBin(bin) {
		if len(out) >= limit {
			break
		}
		if k.connected.Exists(addr) {
			continue
		}
		key := addr.String()
		m, ok := k.meta[key]
		if !ok || m.banned(now) {
			continue
		}
		k.pendingMu.Lock()
		_, isPending := k.pending[key]
		k.pendingMu.Unlock()
		if isPending {
			continue
		}
		if m.failedAttempts >= uint32(m.maxAttempts(k.cfg, depth)) {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// dial attempts a single outbound connection, updating failure
// accounting on error (spec.md §4.3, "Failure accounting").
func (k *Kademlia) dial(addr swarm.Address, depth uint8) error {
	key := addr.String()
	k.metrics.IncDialAttempt()
	k.pendingMu.Lock()
	k.pending[key] = struct{}{}
	k.pendingMu.Unlock()
	defer func() {
		k.pendingMu.Lock()
		delete(k.pending, key)
		k.pendingMu.Unlock()
	}()

	k.mu.RLock()
	m, ok := k.meta[key]
	k.mu.RUnlock()
	if !ok {
		return fmt.Errorf("kademlia: dial %s: no known metadata", addr)
	}

	rec, err := k.addressBook.Get(addr)
	if err != nil {
		return fmt.Errorf("kademlia: dial %s: address book lookup: %w", addr, err)
	}
	if len(rec.Address.Underlays) == 0 {
		return fmt.Errorf("kademlia: dial %s: no underlay recorded", addr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := k.dialLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("kademlia: dial %s: rate limited: %w", addr, err)
	}
	// singleflight collapses a dial already in flight for this overlay
	// (e.g. triggered by both a manage tick and a fresh AddPeers call)
	// into the one outbound attempt already under way.
	_, err, _ = k.dialGroup.Do(key, func() (interface{}, error) {
		return k.p2pSvc.Connect(ctx, rec.Address.Underlays[0])
	})
	if err != nil {
		k.mu.Lock()
		m.failedAttempts++
		exceeded := m.failedAttempts >= uint32(m.maxAttempts(k.cfg, depth))
		if exceeded {
			k.known.Remove(addr)
			delete(k.meta, key)
		}
		k.mu.Unlock()
		k.metrics.IncDialFailure()
		k.scorer.record(key, scoreEventDialFailure, timeNow())
		k.emit(Event{Kind: EventConnectionFailed, Overlay: addr, Err: err})
		return fmt.Errorf("kademlia: dial %s: %w", addr, err)
	}
	return nil
}

// ClosestPeer implements topology.ClosestPeerer.
func (k *Kademlia) ClosestPeer(addr swarm.Address, includeSelf bool, f topology.Select, skipPeers ...swarm.Address) (swarm.Address, error) {
	skip := make(map[string]struct{}, len(skipPeers))
	for _, s := range skipPeers {
		skip[s.String()] = struct{}{}
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	var (
		closest      swarm.Address
		closestPO    int
		closestFound bool
		selfCloser   = includeSelf
	)
	k.connected.IterByProximityDesc(func(e pslice.BinEntry) bool {
		if _, skipped := skip[e.Peer.String()]; skipped {
			return true
		}
		if !k.matchesSelect(e.Peer, f) {
			return true
		}
		if po := int(e.Peer.Proximity(addr)); !closestFound || po > closestPO {
			closest = e.Peer
			closestPO = po
			closestFound = true
		}
		return true
	})
	if !closestFound {
		return swarm.Address{}, topology.ErrNotFound
	}
	if selfCloser && swarm.Proximity(k.base.Bytes(), addr.Bytes()) >= closest.Proximity(addr) {
		return swarm.Address{}, topology.ErrWantSelf
	}
	return closest, nil
}

// matchesSelect applies f to addr's metadata. Only f.Healthy is checked;
// reachability is not tracked per peer, so f.Reachable has no effect.
func (k *Kademlia) matchesSelect(addr swarm.Address, f topology.Select) bool {
	m, ok := k.meta[addr.String()]
	if !ok {
		return false
	}
	if f.Healthy && !m.healthy {
		return false
	}
	return true
}

// EachConnectedPeer implements topology.PeerIterator.
func (k *Kademlia) EachConnectedPeer(fn topology.EachPeerFunc, f topology.Select) error {
	return k.eachConnectedPeer(fn, f, false)
}

// EachConnectedPeerRev implements topology.PeerIterator.
func (k *Kademlia) EachConnectedPeerRev(fn topology.EachPeerFunc, f topology.Select) error {
	return k.eachConnectedPeer(fn, f, true)
}

func (k *Kademlia) eachConnectedPeer(fn topology.EachPeerFunc, f topology.Select, reverse bool) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var iterErr error
	skipBin := -1
	visit := func(e pslice.BinEntry) bool {
		if int(e.PO) == skipBin || !k.matchesSelect(e.Peer, f) {
			return true
		}
		stop, jumpToNext, err := fn(e.Peer, e.PO)
		if err != nil {
			iterErr = err
			return false
		}
		if jumpToNext {
			skipBin = int(e.PO)
		}
		return !stop
	}
	// the deepest bin holds the peers closest to base, so the default
	// order is descending and reverse walks from bin 0 upward.
	if reverse {
		k.connected.IterByProximityAsc(visit)
	} else {
		k.connected.IterByProximityDesc(visit)
	}
	return iterErr
}

// SubscribeTopologyChange implements topology.Driver.
func (k *Kademlia) SubscribeTopologyChange() (<-chan struct{}, func()) {
	k.subMu.Lock()
	defer k.subMu.Unlock()
	id := k.subID
	k.subID++
	c := make(chan struct{}, 1)
	k.subs[id] = c
	unsubscribe := func() {
		k.subMu.Lock()
		defer k.subMu.Unlock()
		delete(k.subs, id)
	}
	return c, unsubscribe
}

func (k *Kademlia) notifyTopologyChange() {
	k.subMu.Lock()
	defer k.subMu.Unlock()
	for _, c := range k.subs {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

// Halt implements topology.Halter.
func (k *Kademlia) Halt() {
	k.mu.Lock()
	k.halted = true
	k.mu.Unlock()
}

// IsReachable implements topology.Driver.
func (k *Kademlia) IsReachable() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.reachable
}

// UpdateReachability implements p2p.ReachableNotifier.
func (k *Kademlia) UpdateReachability(observed ma.Multiaddr) {
	k.mu.Lock()
	k.reachable = true
	k.mu.Unlock()
}

// SetStorageRadius implements topology.SetStorageRadiuser.
func (k *Kademlia) SetStorageRadius(radius uint8) {
	assert.True(radius <= swarm.MaxPO, "storage radius out of range")
	k.mu.Lock()
	k.radius = radius
	k.mu.Unlock()
}

// PeersCount implements topology.PeersCounter.
func (k *Kademlia) PeersCount(f topology.Select) int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	count := 0
	k.connected.IterByProximityAsc(func(e pslice.BinEntry) bool {
		if k.matchesSelect(e.Peer, f) {
			count++
		}
		return true
	})
	return count
}

// UpdatePeerHealth implements topology.Driver.
func (k *Kademlia) UpdatePeerHealth(addr swarm.Address, healthy bool, latency time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if m, ok := k.meta[addr.String()]; ok {
		m.healthy = healthy
		m.lastLatency = latency
	}
}

// Snapshot implements topology.Driver.
func (k *Kademlia) Snapshot() *topology.KadParams {
	k.mu.RLock()
	defer k.mu.RUnlock()

	// Each goroutine below only ever touches its own bin index, so the
	// fan-out needs no further synchronization beyond g.Wait().
	var bins topology.KadBins
	var g errgroup.Group
	for po := 0; po < len(bins); po++ {
		po := po
		g.Go(func() error {
			connected := k.connected.PeersInBin(uint8(po))
			known := k.known.PeersInBin(uint8(po))
			bins[po] = topology.BinInfo{
				BinPopulation: uint(len(known)),
				BinConnected:  uint(len(connected)),
			}
			for _, addr := range connected {
				bins[po].ConnectedPeers = append(bins[po].ConnectedPeers, &topology.PeerInfo{Address: addr})
			}
			return nil
		})
	}
	_ = g.Wait()

	return &topology.KadParams{
		Base:           k.base.String(),
		Population:     k.known.Len(),
		Connected:      k.connected.Len(),
		Timestamp:      timeNow(),
		NNLowWatermark: k.cfg.NNLowWatermark,
		Depth:          k.depth,
		Bins:           bins,
	}
}

// Close implements io.Closer: it stops the manage loop. Connections
// already established are left to the caller to tear down.
func (k *Kademlia) Close() error {
	select {
	case <-k.quit:
		return nil
	default:
		close(k.quit)
	}
	k.wg.Wait()
	return nil
}

var timeNow = time.Now
