package accounting_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/accounting"
	"github.com/ethersphere/beenode/pkg/swarm"
)

func testPeer(b byte) swarm.Address {
	var buf [32]byte
	buf[0] = b
	return swarm.MustNewAddress(buf[:])
}

func TestRecordUploadAndDownload(t *testing.T) {
	acc := accounting.New(accounting.DefaultConfig(), nil)
	h := acc.ForPeer(testPeer(1), true)

	require.Zero(t, h.Balance())

	h.Record(1000, accounting.Upload)
	require.Equal(t, int64(1000), h.Balance())

	h.Record(500, accounting.Download)
	require.Equal(t, int64(500), h.Balance())
}

func TestAllowRejectsBreachOfDisconnectThreshold(t *testing.T) {
	cfg := accounting.DefaultConfig()
	cfg.PaymentThreshold = 10_000
	cfg.PaymentTolerancePercent = 25 // disconnect_threshold = 12_500
	acc := accounting.New(cfg, nil)
	h := acc.ForPeer(testPeer(2), true)

	require.True(t, h.Allow(12_500))
	require.False(t, h.Allow(12_501))
}

func TestReceiveActionApplyDebitsBalanceAndReleasesReservation(t *testing.T) {
	acc := accounting.New(accounting.DefaultConfig(), nil)
	h := acc.ForPeer(testPeer(3), true)

	action := h.PrepareReceive(400)
	action.Apply()

	require.Equal(t, int64(-400), h.Balance())
}

func TestReceiveActionCancelLeavesBalanceUnchanged(t *testing.T) {
	acc := accounting.New(accounting.DefaultConfig(), nil)
	h := acc.ForPeer(testPeer(4), true)

	action := h.PrepareReceive(400)
	action.Cancel()

	require.Zero(t, h.Balance())
}

func TestProvideActionApplyCreditsBalance(t *testing.T) {
	acc := accounting.New(accounting.DefaultConfig(), nil)
	h := acc.ForPeer(testPeer(5), true)

	action := h.PrepareProvide(250)
	action.Apply()

	require.Equal(t, int64(250), h.Balance())
}

func TestLightNodeThresholdsAreScaledDown(t *testing.T) {
	cfg := accounting.DefaultConfig()
	cfg.PaymentThreshold = 1000
	cfg.PaymentTolerancePercent = 0 // disconnect_threshold = 1000
	cfg.LightFactor = 10
	acc := accounting.New(cfg, nil)

	full := acc.ForPeer(testPeer(6), true)
	light := acc.ForPeer(testPeer(7), false)

	require.Equal(t, uint64(1000), full.DisconnectThreshold())
	require.Equal(t, uint64(100), light.DisconnectThreshold())
}

func TestRecordPublishesDisconnectEventOnBreach(t *testing.T) {
	cfg := accounting.DefaultConfig()
	cfg.PaymentThreshold = 1000
	cfg.PaymentTolerancePercent = 0 // disconnect_threshold = 1000
	acc := accounting.New(cfg, nil)
	h := acc.ForPeer(testPeer(8), true)

	h.Record(1001, accounting.Download)

	select {
	case ev := <-acc.Events():
		require.True(t, ev.Peer.Equal(testPeer(8)))
		require.Equal(t, int64(-1001), ev.Balance)
	default:
		t.Fatal("expected a disconnect event")
	}
}

type recordingSettler struct {
	called  bool
	peer    swarm.Address
	balance int64
}

func (s *recordingSettler) Settle(_ context.Context, peer swarm.Address, balance int64) error {
	s.called = true
	s.peer = peer
	s.balance = balance
	return nil
}

func TestSettleForcedAlwaysCallsSettler(t *testing.T) {
	settler := &recordingSettler{}
	acc := accounting.New(accounting.DefaultConfig(), settler)
	h := acc.ForPeer(testPeer(9), true)

	require.NoError(t, h.Settle(context.Background(), true))
	require.True(t, settler.called)
}

func TestSettleSkipsWhenNotOwedAndNotForced(t *testing.T) {
	settler := &recordingSettler{}
	acc := accounting.New(accounting.DefaultConfig(), settler)
	h := acc.ForPeer(testPeer(10), true)

	require.NoError(t, h.Settle(context.Background(), false))
	require.False(t, settler.called)
}

func TestPricingScalesWithProximity(t *testing.T) {
	// S4 in spec.md §8: base_price 100, proximity 28 -> (31-28+1)*100 = 400.
	require.Equal(t, uint64(400), accounting.Price(100, 28))
	require.Equal(t, uint64(100), accounting.Price(100, swarm.MaxPO))
}
