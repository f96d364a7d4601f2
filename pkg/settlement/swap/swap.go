// Package swap implements hard settlement (spec.md §4.6): a signed
// cheque, handed to an injected Chequebook for on-chain cashing.
// Chequebook contract deployment and on-chain cashing are explicitly
// out of scope ("Cheque semantics ... are opaque to the core"); this
// package only signs, transports, and delivers the cheque envelope.
package swap

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethersphere/beenode/pkg/crypto"
	"github.com/ethersphere/beenode/pkg/p2p"
	"github.com/ethersphere/beenode/pkg/p2p/protobuf"
	"github.com/ethersphere/beenode/pkg/settlement/swap/pb"
	"github.com/ethersphere/beenode/pkg/swarm"
)

const (
	ProtocolName = "swap"
	Version      = "1.0.0"
	StreamName   = "swap"
)

// Timeout bounds one cheque delivery/acknowledgement exchange.
const Timeout = 15 * time.Second

const maxMessageSize = 512

// Cheque is the envelope the core delivers through the SWAP stream.
// Beneficiary is the recipient's Ethereum address; cumulative-payout
// bookkeeping and on-chain redemption are Chequebook's concern, not
// this struct's.
type Cheque struct {
	Beneficiary [crypto.AddressLength]byte
	Amount      uint64
	Signature   [crypto.SignatureLength]byte
}

// Chequebook issues outgoing cheques and cashes (or otherwise accepts)
// incoming ones. A concrete implementation deploys and talks to an
// on-chain chequebook contract; this core treats it as opaque
// (spec.md §4.6, "opaque to the core").
type Chequebook interface {
	// Issue signs a cheque payable to beneficiary for amount.
	Issue(ctx context.Context, beneficiary [crypto.AddressLength]byte, amount uint64) (Cheque, error)
	// Cash accepts an incoming cheque, validating and (eventually)
	// redeeming it on-chain.
	Cash(ctx context.Context, cheque Cheque) error
}

// Ledger is the balance-mutating surface SWAP needs from
// pkg/accounting, identical in shape to pseudosettle.Ledger.
type Ledger interface {
	Balance(peer swarm.Address) int64
	CreditPaid(peer swarm.Address, amount uint64)
	CreditReceived(peer swarm.Address, amount uint64)
}

// PeerResolver maps a connected peer's overlay to the Ethereum address
// cheques addressed to it should name as beneficiary (spec.md §4.1,
// the handshake-bound EthereumAddress).
type PeerResolver interface {
	EthereumAddressOf(peer swarm.Address) ([crypto.AddressLength]byte, bool)
}

// Service runs the SWAP protocol both as settlement initiator (Settle,
// satisfying accounting.Settler) and as the inbound stream handler.
type Service struct {
	p2pSvc     p2p.Service
	chequebook Chequebook
	ledger     Ledger
	resolver   PeerResolver
}

func New(p2pSvc p2p.Service, chequebook Chequebook, ledger Ledger, resolver PeerResolver) *Service {
	return &Service{p2pSvc: p2pSvc, chequebook: chequebook, ledger: ledger, resolver: resolver}
}

func (s *Service) Protocol() p2p.ProtocolSpec {
	return p2p.ProtocolSpec{
		Name:    ProtocolName,
		Version: Version,
		Streams: []p2p.StreamSpec{
			{Name: StreamName, Handler: s.handleIncoming},
		},
	}
}

// Settle pays down our debt to peer with a freshly issued cheque
// (satisfies accounting.Settler).
func (s *Service) Settle(ctx context.Context, peer swarm.Address, balance int64) error {
	if balance >= 0 {
		return nil
	}
	amount := uint64(-balance)

	beneficiary, ok := s.resolver.EthereumAddressOf(peer)
	if !ok {
		return fmt.Errorf("swap: no known ethereum address for peer %s", peer)
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	cheque, err := s.chequebook.Issue(ctx, beneficiary, amount)
	if err != nil {
		return fmt.Errorf("swap: issue cheque: %w", err)
	}

	stream, err := s.p2pSvc.NewStream(ctx, peer, ProtocolName, Version, StreamName)
	if err != nil {
		return fmt.Errorf("swap: open stream to %s: %w", peer, err)
	}
	defer stream.Close()

	done := make(chan error, 1)
	go func() {
		envelope := &pb.ChequeEnvelope{
			Beneficiary: append([]byte(nil), cheque.Beneficiary[:]...),
			Amount:      cheque.Amount,
			Signature:   append([]byte(nil), cheque.Signature[:]...),
		}
		if err := protobuf.WriteMessage(stream, envelope); err != nil {
			done <- fmt.Errorf("swap: write cheque: %w", err)
			return
		}
		ack := &pb.ChequeAck{}
		if err := protobuf.ReadMessage(stream, ack, maxMessageSize); err != nil {
			done <- fmt.Errorf("swap: read ack: %w", err)
			return
		}
		if ack.Amount != amount {
			done <- fmt.Errorf("swap: ack amount mismatch")
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
		return fmt.Errorf("swap: settlement timeout: %w", ctx.Err())
	}

	s.ledger.CreditPaid(peer, amount)
	log.Debug("swap: settled with cheque", "peer", peer, "amount", amount)
	return nil
}

func (s *Service) handleIncoming(ctx context.Context, peer p2p.Peer, stream p2p.Stream) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	defer stream.Close()

	done := make(chan error, 1)
	go func() {
		envelope := &pb.ChequeEnvelope{}
		if err := protobuf.ReadMessage(stream, envelope, maxMessageSize); err != nil {
			done <- fmt.Errorf("swap: read cheque: %w", err)
			return
		}

		cheque, err := envelopeToCheque(envelope)
		if err != nil {
			done <- err
			return
		}

		if err := s.chequebook.Cash(ctx, cheque); err != nil {
			done <- fmt.Errorf("swap: cash cheque: %w", err)
			return
		}
		s.ledger.CreditReceived(peer.Address, cheque.Amount)

		ack := &pb.ChequeAck{Amount: cheque.Amount}
		if err := protobuf.WriteMessage(stream, ack); err != nil {
			done <- fmt.Errorf("swap: write ack: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("swap: stream timeout: %w", ctx.Err())
	}
}

func envelopeToCheque(m *pb.ChequeEnvelope) (Cheque, error) {
	var cheque Cheque
	if len(m.Beneficiary) != crypto.AddressLength {
		return cheque, fmt.Errorf("swap: bad beneficiary length: %d", len(m.Beneficiary))
	}
	if len(m.Signature) != crypto.SignatureLength {
		return cheque, fmt.Errorf("swap: bad signature length: %d", len(m.Signature))
	}
	copy(cheque.Beneficiary[:], m.Beneficiary)
	copy(cheque.Signature[:], m.Signature)
	cheque.Amount = m.Amount
	return cheque, nil
}
