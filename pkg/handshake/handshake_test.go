package handshake_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/crypto"
	"github.com/ethersphere/beenode/pkg/handshake"
	"github.com/ethersphere/beenode/pkg/handshake/pb"
	"github.com/ethersphere/beenode/pkg/p2p"
	"github.com/ethersphere/beenode/pkg/p2p/protobuf"
)

// pipeStream adapts a net.Conn half of an in-memory pipe to p2p.Stream for
// testing, without requiring a real transport.
type pipeStream struct {
	net.Conn
}

func (p pipeStream) Headers() p2p.Headers { return nil }

func newStreamPair() (p2p.Stream, p2p.Stream) {
	a, b := net.Pipe()
	return pipeStream{a}, pipeStream{b}
}

func newService(t *testing.T, networkID uint64) *handshake.Service {
	t.Helper()
	signer, err := crypto.GenerateEphemeralSigner()
	require.NoError(t, err)
	underlay, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/1634")
	require.NoError(t, err)
	var nonce [32]byte
	svc, err := handshake.New(signer, nonce, networkID, true, "hi", []ma.Multiaddr{underlay}, nil)
	require.NoError(t, err)
	return svc
}

func TestHandshakeRoundTrip(t *testing.T) {
	dialerStream, listenerStream := newStreamPair()
	defer dialerStream.Close()
	defer listenerStream.Close()

	dialer := newService(t, 1)
	listener := newService(t, 1)

	remoteAddr, err := ma.NewMultiaddr("/ip4/10.0.0.1/tcp/1634")
	require.NoError(t, err)

	type result struct {
		info *handshake.Info
		err  error
	}
	dialerCh := make(chan result, 1)
	listenerCh := make(chan result, 1)

	go func() {
		info, err := dialer.Outbound(context.Background(), dialerStream, remoteAddr)
		dialerCh <- result{info, err}
	}()
	go func() {
		info, err := listener.Inbound(context.Background(), listenerStream)
		listenerCh <- result{info, err}
	}()

	dr := <-dialerCh
	lr := <-listenerCh

	require.NoError(t, dr.err)
	require.NoError(t, lr.err)
	require.NotNil(t, dr.info.Peer)
	require.NotNil(t, lr.info.Peer)
	require.True(t, dr.info.ObservedUnderlay.Equal(remoteAddr))
}

func TestHandshakeRejectsNetworkIDMismatch(t *testing.T) {
	dialerStream, listenerStream := newStreamPair()
	defer dialerStream.Close()
	defer listenerStream.Close()

	dialer := newService(t, 1)
	listener := newService(t, 2)

	type result struct {
		err error
	}
	dialerCh := make(chan result, 1)
	listenerCh := make(chan result, 1)

	go func() {
		_, err := dialer.Outbound(context.Background(), dialerStream, nil)
		dialerCh <- result{err}
	}()
	go func() {
		_, err := listener.Inbound(context.Background(), listenerStream)
		listenerCh <- result{err}
	}()

	dr := <-dialerCh
	lr := <-listenerCh

	require.Error(t, lr.err)
	require.ErrorIs(t, lr.err, handshake.ErrNetworkIDMismatch)
	require.Error(t, dr.err)
}

func TestHandshakeOutboundTimesOutOnSilentPeer(t *testing.T) {
	dialerStream, listenerStream := newStreamPair()
	defer listenerStream.Close()

	dialer := newService(t, 1)

	// drain the SYN the dialer writes, but never respond, forcing the
	// dialer's read of SynAck to block until the context deadline fires.
	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := listenerStream.Read(buf); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := dialer.Outbound(ctx, dialerStream, nil)
	require.Error(t, err)
}

func TestSynAckRoundTripsThroughWire(t *testing.T) {
	r, w := io.Pipe()
	msg := &pb.SynAck{
		Syn: pb.Syn{ObservedUnderlay: []byte("underlay")},
		Ack: pb.Ack{NetworkID: 7, FullNode: true, WelcomeMessage: "hey"},
	}
	go func() {
		_ = protobuf.WriteMessage(w, msg)
		w.Close()
	}()

	got := &pb.SynAck{}
	err := protobuf.ReadMessage(r, got, 4096)
	require.NoError(t, err)
	require.Equal(t, msg.Syn.ObservedUnderlay, got.Syn.ObservedUnderlay)
	require.Equal(t, msg.Ack.NetworkID, got.Ack.NetworkID)
	require.Equal(t, msg.Ack.WelcomeMessage, got.Ack.WelcomeMessage)
}
