package config

import (
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	ma "github.com/multiformats/go-multiaddr"
)

// Hardfork names a Swarm protocol hardfork (spec.md §3, "hardfork schedule
// keyed by timestamp"); supplemented from
// original_source/crates/crates/swarmspec/src/forks.rs, dropped by the
// distillation but not excluded by any Non-goal.
type Hardfork string

// Frontier is the network's initial launch; the only hardfork defined so
// far, mirroring the original's single-variant enum.
const Frontier Hardfork = "frontier"

// ForkCondition is the activation condition for a Hardfork: either a Unix
// timestamp, or Never (the fork does not exist on this network).
type ForkCondition struct {
	timestamp *uint64
}

// AtTimestamp builds a ForkCondition that activates at the given Unix
// timestamp.
func AtTimestamp(ts uint64) ForkCondition { return ForkCondition{timestamp: &ts} }

// Never is the zero ForkCondition: the fork never activates.
var Never = ForkCondition{}

// ActiveAt reports whether the fork is live at the given Unix timestamp.
func (c ForkCondition) ActiveAt(timestamp uint64) bool {
	return c.timestamp != nil && timestamp >= *c.timestamp
}

// Hardforks is an activation table keyed by Hardfork name. It is a plain
// map, so iterating it yields no particular order.
type Hardforks map[Hardfork]ForkCondition

// ActiveAt reports whether fork is active at timestamp; an unlisted fork
// is treated as never-active.
func (h Hardforks) ActiveAt(fork Hardfork, timestamp uint64) bool {
	cond, ok := h[fork]
	return ok && cond.ActiveAt(timestamp)
}

// NetworkSpec is the immutable description of a Swarm network (spec.md §3,
// "Network spec"): network_id, human-readable name, bootstrap multiaddrs,
// hardfork schedule, chunk-size/branches parameters. Shared by reference;
// never mutated after construction.
type NetworkSpec struct {
	NetworkID   uint64
	Name        string
	Bootnodes   []ma.Multiaddr
	Hardforks   Hardforks
	ChunkSize   int
	Branches    int
	GenesisHash [32]byte
}

// ActiveAt is a convenience forward to Hardforks.ActiveAt.
func (s *NetworkSpec) ActiveAt(fork Hardfork, timestamp uint64) bool {
	return s.Hardforks.ActiveAt(fork, timestamp)
}

// chunk size and branching factor are network-spec-wide constants in real
// Swarm deployments; not yet configurable per spec.md's data model.
const (
	defaultChunkSize = 4096
	defaultBranches  = 128
)

func genesisHash(networkID uint64) [32]byte {
	var seed [8]byte
	for i := range seed {
		seed[i] = byte(networkID >> (8 * (7 - i)))
	}
	var buf [32]byte
	for i := range buf {
		buf[i] = seed[i%len(seed)] ^ byte(i)
	}
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf[:]))
	return out
}

func mustMultiaddrs(addrs ...string) []ma.Multiaddr {
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		parsed, err := ma.NewMultiaddr(a)
		if err != nil {
			panic(fmt.Sprintf("config: invalid bootnode multiaddr %q: %v", a, err))
		}
		out = append(out, parsed)
	}
	return out
}

func mainnetSpec() *NetworkSpec {
	const networkID = 1
	return &NetworkSpec{
		NetworkID: networkID,
		Name:      "mainnet",
		Bootnodes: mustMultiaddrs(
			"/ip4/3.127.247.93/tcp/1634/p2p/16Uiu2HAkw5SNNtSvH1zJiQ6Gc3WoGNSxiyNueRKe6fuAuh57G3Bk",
			"/ip4/18.193.69.215/tcp/1634/p2p/16Uiu2HAkzcmk8MeQFnSgA7SGktjR9xCyCyx1rBbGf6rBD6vy5gEi",
		),
		Hardforks:   Hardforks{Frontier: AtTimestamp(1623255587)},
		ChunkSize:   defaultChunkSize,
		Branches:    defaultBranches,
		GenesisHash: genesisHash(networkID),
	}
}

func testnetSpec() *NetworkSpec {
	const networkID = 10
	return &NetworkSpec{
		NetworkID: networkID,
		Name:      "testnet",
		Bootnodes: mustMultiaddrs(
			"/ip4/3.8.176.112/tcp/1634/p2p/16Uiu2HAkwfcKCxGChwwJN7RyUJ1N85eHN7HyMnP3GJrqKPEUoDfL",
			"/ip4/3.8.176.46/tcp/1634/p2p/16Uiu2HAkzFm9WBXWYnpAKRcZK1HRu1Gv74zW5aw1XzYFz1MGpkqs",
		),
		Hardforks:   Hardforks{Frontier: AtTimestamp(1623255587)},
		ChunkSize:   defaultChunkSize,
		Branches:    defaultBranches,
		GenesisHash: genesisHash(networkID),
	}
}

// Mainnet returns the process-wide Swarm mainnet NetworkSpec, built once
// on first use (sync.OnceValue, Go's one-time construction barrier).
var Mainnet = sync.OnceValue(mainnetSpec)

// Testnet returns the process-wide Swarm testnet NetworkSpec, built once
// on first use.
var Testnet = sync.OnceValue(testnetSpec)

// Dev builds a fresh, bootnode-less NetworkSpec for local development and
// tests, with the Frontier hardfork active from genesis.
func Dev(networkID uint64) *NetworkSpec {
	return &NetworkSpec{
		NetworkID:   networkID,
		Name:        "dev",
		Hardforks:   Hardforks{Frontier: AtTimestamp(0)},
		ChunkSize:   defaultChunkSize,
		Branches:    defaultBranches,
		GenesisHash: genesisHash(networkID),
	}
}
