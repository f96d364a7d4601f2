package abuse_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/abuse"
	"github.com/ethersphere/beenode/pkg/swarm"
)

func overlayFor(b byte) swarm.Address {
	buf := make([]byte, swarm.AddressLength)
	buf[0] = b
	return swarm.MustNewAddress(buf)
}

func TestAddKnownOverlayEvictsOldestWhenFull(t *testing.T) {
	tr := abuse.NewTracker(2, 0)
	ip := netip.MustParseAddr("203.0.113.1")
	score := tr.For(ip)

	score.AddKnownOverlay(overlayFor(1))
	score.AddKnownOverlay(overlayFor(2))
	require.False(t, score.HasSuspiciousChurn(2))

	score.AddKnownOverlay(overlayFor(3))
	require.False(t, score.HasSuspiciousChurn(2))
}

func TestAddKnownOverlayDedups(t *testing.T) {
	tr := abuse.NewTracker(4, 0)
	score := tr.For(netip.MustParseAddr("203.0.113.2"))

	score.AddKnownOverlay(overlayFor(9))
	score.AddKnownOverlay(overlayFor(9))
	require.False(t, score.HasSuspiciousChurn(1))
}

func TestBanRatioAccumulates(t *testing.T) {
	tr := abuse.NewTracker(0, 0)
	score := tr.For(netip.MustParseAddr("203.0.113.3"))

	require.Equal(t, float64(0), score.BanRatio())

	score.AddKnownOverlay(overlayFor(1))
	score.AddKnownOverlay(overlayFor(2))
	score.RecordOverlayBan()

	require.InDelta(t, 0.5, score.BanRatio(), 1e-9)
}

func TestBanUnban(t *testing.T) {
	tr := abuse.NewTracker(0, 0)
	score := tr.For(netip.MustParseAddr("203.0.113.4"))

	banned, _ := score.Banned()
	require.False(t, banned)

	score.Ban("excessive protocol errors")
	banned, reason := score.Banned()
	require.True(t, banned)
	require.Equal(t, "excessive protocol errors", reason)

	score.Unban()
	banned, _ = score.Banned()
	require.False(t, banned)
}

func TestRecordConnectionAttemptAndProtocolError(t *testing.T) {
	tr := abuse.NewTracker(0, 0)
	score := tr.For(netip.MustParseAddr("203.0.113.5"))

	score.RecordConnectionAttempt()
	score.RecordConnectionAttempt()
	score.RecordProtocolError()

	score.AddScore(2.5)
	require.Equal(t, 2.5, score.Value())
}

func TestTrackerReturnsSameScoreForSameIP(t *testing.T) {
	tr := abuse.NewTracker(0, 0)
	ip := netip.MustParseAddr("198.51.100.1")

	first := tr.For(ip)
	first.AddScore(1)

	second := tr.For(ip)
	require.Equal(t, float64(1), second.Value())
}

func TestTrackerRemoveResetsState(t *testing.T) {
	tr := abuse.NewTracker(0, 0)
	ip := netip.MustParseAddr("198.51.100.2")

	tr.For(ip).AddScore(5)
	tr.Remove(ip)

	require.Equal(t, float64(0), tr.For(ip).Value())
}

func TestTrackerEvictsLeastRecentlyUsedIPWhenFull(t *testing.T) {
	tr := abuse.NewTracker(0, 2)

	first := netip.MustParseAddr("198.51.100.10")
	second := netip.MustParseAddr("198.51.100.11")
	third := netip.MustParseAddr("198.51.100.12")

	tr.For(first).AddScore(1)
	tr.For(second).AddScore(1)
	require.Equal(t, 2, tr.Len())

	// third IP evicts the least-recently-used entry (first).
	tr.For(third).AddScore(1)
	require.Equal(t, 2, tr.Len())
	require.Equal(t, float64(0), tr.For(first).Value())
}
