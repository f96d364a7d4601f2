package swap_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/crypto"
	"github.com/ethersphere/beenode/pkg/p2p"
	"github.com/ethersphere/beenode/pkg/settlement/swap"
	"github.com/ethersphere/beenode/pkg/swarm"
)

type pipeStream struct {
	net.Conn
}

func (p pipeStream) Headers() p2p.Headers { return nil }

type fakeTransport struct {
	receiver *swap.Service
}

func (f *fakeTransport) NewStream(ctx context.Context, peer swarm.Address, protocol, version, streamName string) (p2p.Stream, error) {
	clientConn, serverConn := net.Pipe()
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

type fakeResolver struct {
	addr [crypto.AddressLength]byte
}

func (r fakeResolver) EthereumAddressOf(swarm.Address) ([crypto.AddressLength]byte, bool) {
	return r.addr, true
}

func testPeer(b byte) swarm.Address {
	var buf [32]byte
	buf[0] = b
	return swarm.MustNewAddress(buf[:])
}

func TestSettleDeliversSignedChequeAndCreditsBothSides(t *testing.T) {
	payerSigner, err := crypto.GenerateEphemeralSigner()
	require.NoError(t, err)
	receiverSigner, err := crypto.GenerateEphemeralSigner()
	require.NoError(t, err)

	payerLedger := newFakeLedger()
	receiverLedger := newFakeLedger()

	beneficiary, err := receiverSigner.EthereumAddress()
	require.NoError(t, err)

	receiver := swap.New(nil, swap.NewSigningChequebook(receiverSigner), receiverLedger, nil)
	transport := &fakeTransport{receiver: receiver}
	payer := swap.New(transport, swap.NewSigningChequebook(payerSigner), payerLedger, fakeResolver{addr: beneficiary})

	peer := testPeer(1)
	err = payer.Settle(context.Background(), peer, -900)
	require.NoError(t, err)

	require.Equal(t, uint64(900), payerLedger.paid[peer.String()])
	require.Equal(t, uint64(900), receiverLedger.credit[peer.String()])
}

func TestSettleIsNoopWithNonNegativeBalance(t *testing.T) {
	signer, err := crypto.GenerateEphemeralSigner()
	require.NoError(t, err)
	ledger := newFakeLedger()
	svc := swap.New(nil, swap.NewSigningChequebook(signer), ledger, nil)

	err = svc.Settle(context.Background(), testPeer(2), 100)
	require.NoError(t, err)
	require.Empty(t, ledger.paid)
}
