package pseudosettle_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/p2p"
	"github.com/ethersphere/beenode/pkg/settlement/pseudosettle"
	"github.com/ethersphere/beenode/pkg/swarm"
)

type pipeStream struct {
	net.Conn
}

func (p pipeStream) Headers() p2p.Headers { return nil }

// fakeTransport wires Settle's NewStream call directly to a paired
// net.Pipe, handing the "server" end to a goroutine running the
// receiver's Protocol handler.
type fakeTransport struct {
	serverConn net.Conn
	receiver   *pseudosettle.Service
}

func (f *fakeTransport) NewStream(ctx context.Context, peer swarm.Address, protocol, version, streamName string) (p2p.Stream, error) {
	clientConn, serverConn := net.Pipe()
	f.serverConn = serverConn
	go func() {
		_ = f.receiver.Protocol().Streams[0].Handler(context.Background(), p2p.Peer{Address: peer}, pipeStream{serverConn})
	}()
	return pipeStream{clientConn}, nil
}
func (f *fakeTransport) AddProtocol(p2p.ProtocolSpec) {}
func (f *fakeTransport) Connect(context.Context, ma.Multiaddr) (*p2p.Peer, error) {
	return nil, nil
}
func (f *fakeTransport) Disconnect(swarm.Address, string) error { return nil }
func (f *fakeTransport) Blocklist(swarm.Address, time.Duration, string) error {
	return nil
}

type fakeLedger struct {
	mu     sync.Mutex
	paid   map[string]uint64
	credit map[string]uint64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{paid: map[string]uint64{}, credit: map[string]uint64{}}
}
func (l *fakeLedger) Balance(swarm.Address) int64 { return 0 }
func (l *fakeLedger) CreditPaid(peer swarm.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paid[peer.String()] += amount
}
func (l *fakeLedger) CreditReceived(peer swarm.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit[peer.String()] += amount
}

func testPeer(b byte) swarm.Address {
	var buf [32]byte
	buf[0] = b
	return swarm.MustNewAddress(buf[:])
}

func TestSettlePaysDownDebtAndCreditsBothSides(t *testing.T) {
	payerLedger := newFakeLedger()
	receiverLedger := newFakeLedger()
	receiver := pseudosettle.New(nil, receiverLedger)

	transport := &fakeTransport{receiver: receiver}
	payer := pseudosettle.New(transport, payerLedger)

	peer := testPeer(1)
	err := payer.Settle(context.Background(), peer, -750)
	require.NoError(t, err)

	require.Equal(t, uint64(750), payerLedger.paid[peer.String()])
	require.Equal(t, uint64(750), receiverLedger.credit[peer.String()])
}

func TestSettleIsNoopWithNonNegativeBalance(t *testing.T) {
	ledger := newFakeLedger()
	svc := pseudosettle.New(nil, ledger)

	err := svc.Settle(context.Background(), testPeer(2), 0)
	require.NoError(t, err)
	require.Empty(t, ledger.paid)
}
