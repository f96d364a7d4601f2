// Package abuse tracks per-IP scoring to catch abuse patterns that
// span multiple overlays — most notably an attacker cycling nonces
// while dialing from the same address (spec.md §3, "Per-IP score").
package abuse

import (
	"net/netip"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethersphere/beenode/pkg/metrics"
	"github.com/ethersphere/beenode/pkg/swarm"
)

// DefaultMaxKnownOverlays bounds the known-overlays ring per IP.
const DefaultMaxKnownOverlays = 16

// DefaultMaxTrackedIPs bounds the number of distinct IPs a Tracker keeps
// a Score for. Beyond this, the least-recently-used IP is evicted so a
// large-scale scan can't grow this set without bound.
const DefaultMaxTrackedIPs = 100_000

// Score is the per-IP bookkeeping record (spec.md §3): `{ score,
// known_overlays: bounded ring, connection_attempts, protocol_errors,
// banned_overlays, banned: bool }`.
type Score struct {
	mu sync.Mutex

	value          float64
	lastUpdated    time.Time
	knownOverlays  []swarm.Address
	maxOverlays    int
	attempts       uint32
	protocolErrors uint32
	bannedOverlays uint32
	banned         bool
	banReason      string

	metrics *metrics.AbuseMetrics
}

func newScore(maxOverlays int, m *metrics.AbuseMetrics) *Score {
	if maxOverlays <= 0 {
		maxOverlays = DefaultMaxKnownOverlays
	}
	return &Score{maxOverlays: maxOverlays, lastUpdated: timeNow(), metrics: m}
}

// AddKnownOverlay records overlay as seen from this IP, evicting the
// oldest entry once the bounded ring is full. Duplicate overlays are a
// no-op.
func (s *Score) AddKnownOverlay(overlay swarm.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdated = timeNow()

	for _, o := range s.knownOverlays {
		if o.Equal(overlay) {
			return
		}
	}
	if len(s.knownOverlays) >= s.maxOverlays {
		s.knownOverlays = s.knownOverlays[1:]
	}
	s.knownOverlays = append(s.knownOverlays, overlay)
}

// HasSuspiciousChurn reports whether the bounded ring currently holds
// more than threshold distinct overlays seen from this IP — a signature
// of nonce-churn abuse. Overlays already evicted from the ring are not
// counted, so a threshold at or above the ring capacity never reports
// churn.
func (s *Score) HasSuspiciousChurn(threshold int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.knownOverlays) > threshold
}

// RecordConnectionAttempt increments the attempt counter.
func (s *Score) RecordConnectionAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	s.lastUpdated = timeNow()
}

// RecordProtocolError increments the protocol-error counter (spec.md
// §7: "increment the peer's protocol-error counter").
func (s *Score) RecordProtocolError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocolErrors++
	s.lastUpdated = timeNow()
}

// RecordOverlayBan notes that an overlay seen from this IP was banned.
func (s *Score) RecordOverlayBan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bannedOverlays++
	s.lastUpdated = timeNow()
}

// BanRatio is bannedOverlays / len(knownOverlays), 0 if no overlays are
// known yet. A high ratio flags an IP most of whose identities got
// banned.
func (s *Score) BanRatio() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.knownOverlays) == 0 {
		return 0
	}
	return float64(s.bannedOverlays) / float64(len(s.knownOverlays))
}

// Ban marks this IP as banned independently of any single overlay.
func (s *Score) Ban(reason string) {
	s.mu.Lock()
	s.banned = true
	s.banReason = reason
	s.mu.Unlock()
	s.metrics.IncBan()
}

// Unban clears an IP-level ban.
func (s *Score) Unban() {
	s.mu.Lock()
	s.banned = false
	s.banReason = ""
	s.mu.Unlock()
	s.metrics.IncUnban()
}

// Banned reports the current ban state and reason.
func (s *Score) Banned() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banned, s.banReason
}

// Value returns the current abuse score.
func (s *Score) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// AddScore adds delta to the running score.
func (s *Score) AddScore(delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value += delta
	s.lastUpdated = timeNow()
}

// Tracker maps IP addresses to their abuse Score, bounding memory with
// an LRU eviction policy so a large-scale scan can't grow this set
// without bound.
type Tracker struct {
	mu          sync.Mutex
	scores      *lru.Cache[netip.Addr, *Score]
	maxOverlays int
	metrics     *metrics.AbuseMetrics
}

// NewTracker constructs a Tracker. maxKnownOverlays bounds each IP's
// known-overlays ring; pass 0 for DefaultMaxKnownOverlays. maxTrackedIPs
// bounds the number of distinct IPs tracked at once; pass 0 for
// DefaultMaxTrackedIPs.
func NewTracker(maxKnownOverlays, maxTrackedIPs int) *Tracker {
	if maxTrackedIPs <= 0 {
		maxTrackedIPs = DefaultMaxTrackedIPs
	}
	cache, err := lru.New[netip.Addr, *Score](maxTrackedIPs)
	if err != nil {
		// only returns an error for size <= 0, which is excluded above.
		panic(err)
	}
	return &Tracker{scores: cache, maxOverlays: maxKnownOverlays}
}

// SetMetrics wires a metrics recorder into this tracker; new Scores
// created by For afterward report ban/unban counts to it.
func (t *Tracker) SetMetrics(m *metrics.AbuseMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// For returns (creating if necessary) the Score for ip.
func (t *Tracker) For(ip netip.Addr) *Score {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scores.Get(ip)
	if !ok {
		s = newScore(t.maxOverlays, t.metrics)
		t.scores.Add(ip, s)
	}
	return s
}

// Remove discards tracking state for ip.
func (t *Tracker) Remove(ip netip.Addr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scores.Remove(ip)
}

// Len reports how many distinct IPs currently have tracking state.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scores.Len()
}

var timeNow = time.Now
