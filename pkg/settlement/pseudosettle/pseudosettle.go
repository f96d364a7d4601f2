// Package pseudosettle implements soft settlement (spec.md §4.6): an
// in-memory, peer-to-peer acknowledgement exchange that pays down a
// debtor's balance without any on-chain value transfer. It is one of
// the two opaque settlement sub-protocols behind accounting.Settler;
// the core never inspects cheque or payment internals, only the
// resulting balance credit.
package pseudosettle

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethersphere/beenode/pkg/p2p"
	"github.com/ethersphere/beenode/pkg/p2p/protobuf"
	"github.com/ethersphere/beenode/pkg/settlement/pseudosettle/pb"
	"github.com/ethersphere/beenode/pkg/swarm"
)

const (
	ProtocolName = "pseudosettle"
	Version      = "1.0.0"
	StreamName   = "pseudosettle"
)

// Timeout bounds one payment/ack exchange.
const Timeout = 15 * time.Second

const maxMessageSize = 256

// Ledger is the balance-mutating surface pseudosettle needs from
// pkg/accounting. It is satisfied by *accounting.Accounting.
type Ledger interface {
	Balance(peer swarm.Address) int64
	CreditPaid(peer swarm.Address, amount uint64)
	CreditReceived(peer swarm.Address, amount uint64)
}

// Service runs the pseudosettle protocol both as settlement initiator
// (Settle, satisfying accounting.Settler) and as the inbound stream
// handler.
type Service struct {
	p2pSvc p2p.Service
	ledger Ledger
}

// New constructs a pseudosettle Service. p2pSvc is used to open
// outbound settlement streams.
func New(p2pSvc p2p.Service, ledger Ledger) *Service {
	return &Service{p2pSvc: p2pSvc, ledger: ledger}
}

// Protocol returns this service's ProtocolSpec for registration with a
// p2p.Streamer.
func (s *Service) Protocol() p2p.ProtocolSpec {
	return p2p.ProtocolSpec{
		Name:    ProtocolName,
		Version: Version,
		Streams: []p2p.StreamSpec{
			{Name: StreamName, Handler: s.handleIncoming},
		},
	}
}

// Settle pays down our debt to peer by sending a Payment for the full
// outstanding amount and waiting for the creditor's PaymentAck. A
// non-negative balance means we owe nothing, and Settle is a no-op
// (satisfies accounting.Settler).
func (s *Service) Settle(ctx context.Context, peer swarm.Address, balance int64) error {
	if balance >= 0 {
		return nil
	}
	amount := uint64(-balance)

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	stream, err := s.p2pSvc.NewStream(ctx, peer, ProtocolName, Version, StreamName)
	if err != nil {
		return fmt.Errorf("pseudosettle: open stream to %s: %w", peer, err)
	}
	defer stream.Close()

	done := make(chan error, 1)
	go func() {
		payment := &pb.Payment{Amount: amountToBytes(amount)}
		if err := protobuf.WriteMessage(stream, payment); err != nil {
			done <- fmt.Errorf("pseudosettle: write payment: %w", err)
			return
		}
		ack := &pb.PaymentAck{}
		if err := protobuf.ReadMessage(stream, ack, maxMessageSize); err != nil {
			done <- fmt.Errorf("pseudosettle: read ack: %w", err)
			return
		}
		if amountFromBytes(ack.Amount) != amount {
			done <- fmt.Errorf("pseudosettle: ack amount mismatch")
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return fmt.Errorf("pseudosettle: settlement timeout: %w", ctx.Err())
	}

	s.ledger.CreditPaid(peer, amount)
	log.Debug("pseudosettle: settled", "peer", peer, "amount", amount)
	return nil
}

// handleIncoming is the inbound stream handler: it reads one Payment,
// credits the ledger, and acknowledges.
func (s *Service) handleIncoming(ctx context.Context, peer p2p.Peer, stream p2p.Stream) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	defer stream.Close()

	done := make(chan error, 1)
	go func() {
		payment := &pb.Payment{}
		if err := protobuf.ReadMessage(stream, payment, maxMessageSize); err != nil {
			done <- fmt.Errorf("pseudosettle: read payment: %w", err)
			return
		}
		amount := amountFromBytes(payment.Amount)
		s.ledger.CreditReceived(peer.Address, amount)

		ack := &pb.PaymentAck{Amount: payment.Amount, Timestamp: timeNow().UnixNano()}
		if err := protobuf.WriteMessage(stream, ack); err != nil {
			done <- fmt.Errorf("pseudosettle: write ack: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("pseudosettle: stream timeout: %w", ctx.Err())
	}
}

// amountToBytes encodes amount as big-endian bytes with leading zeros
// trimmed, matching the wire convention documented by the reference
// implementation's codec (a zero amount encodes as an empty slice).
func amountToBytes(amount uint64) []byte {
	if amount == 0 {
		return nil
	}
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(amount)
		amount >>= 8
	}
	i := 0
	for i < 7 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}

func amountFromBytes(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

var timeNow = time.Now
