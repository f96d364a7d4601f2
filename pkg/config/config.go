// Package config exposes the "runtime configuration surface" of spec.md
// §6 as a single TOML-loadable struct, and the process-wide NetworkSpec
// singletons (Mainnet, Testnet) it is built against.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/ethersphere/beenode/pkg/accounting"
	"github.com/ethersphere/beenode/pkg/identity"
	"github.com/ethersphere/beenode/pkg/topology/kademlia"
)

// IdentityMode selects how the node's signing key is sourced (spec.md §6,
// "identity_mode ∈ {Ephemeral, Persistent{keystore_path, password}}").
type IdentityMode struct {
	Ephemeral bool   `toml:"ephemeral"`
	Keystore  string `toml:"keystore_path,omitempty"`
	Password  string `toml:"password,omitempty"`
}

// Watermarks configures the topology manager's per-bin capacity table
// (spec.md §4.3). A zero field means "use kademlia.DefaultConfig's value".
type Watermarks struct {
	LowWatermark          int    `toml:"low_watermark,omitempty"`
	SaturationPeers        int    `toml:"saturation_peers,omitempty"`
	HighWatermark         int    `toml:"high_watermark,omitempty"`
	ClientReservedSlots   int    `toml:"client_reserved_slots,omitempty"`
	MaxPendingConnections int    `toml:"max_pending_connections,omitempty"`
	MaxConnectAttempts    int    `toml:"max_connect_attempts,omitempty"`
}

// AccountingParams configures the bandwidth accounting layer (spec.md §6,
// §4.6). Zero numeric fields fall back to accounting.DefaultConfig's
// values; Mode is used as given, so its zero value selects ModeNone.
type AccountingParams struct {
	Mode                    accounting.Mode `toml:"mode"`
	PaymentThreshold        uint64          `toml:"payment_threshold,omitempty"`
	PaymentTolerancePercent uint64          `toml:"payment_tolerance_percent,omitempty"`
	BasePrice               uint64          `toml:"base_price,omitempty"`
	RefreshRate             uint64          `toml:"refresh_rate,omitempty"`
	EarlyPaymentPercent     uint64          `toml:"early_payment_percent,omitempty"`
	LightFactor             uint64          `toml:"light_factor,omitempty"`
}

// Config is the runtime configuration surface named in spec.md §6,
// loadable from TOML or constructed programmatically for tests.
type Config struct {
	Network        string       `toml:"network"` // "mainnet", "testnet", or "dev"
	DevNetworkID   uint64       `toml:"dev_network_id,omitempty"`
	ListenAddrs    []string     `toml:"listen_addrs"`
	Bootnodes      []string     `toml:"bootnodes,omitempty"`
	NodeType       identity.NodeType `toml:"node_type"`
	Identity       IdentityMode `toml:"identity"`
	ManageInterval Duration     `toml:"manage_interval,omitempty"`
	Watermarks     Watermarks   `toml:"watermarks"`
	Accounting     AccountingParams `toml:"accounting"`
}

// LoadFile reads and decodes a TOML configuration file, the pattern this
// corpus's CLI entry points use to turn a file path into a typed config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// WriteFile encodes cfg as TOML to path, mode 0644.
func WriteFile(path string, cfg Config) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}

// Validate enforces the invariants spec.md ties to this surface: storer
// nodes must use a persistent identity (§4.1), and a configured accounting
// mode must be one this build understands.
func (c Config) Validate() error {
	if c.NodeType == identity.Storer && c.Identity.Ephemeral {
		return identity.ErrStorerMustBePersistent
	}
	if c.Accounting.Mode < accounting.ModeNone || c.Accounting.Mode > accounting.ModeBoth {
		return fmt.Errorf("config: unknown accounting mode %d", c.Accounting.Mode)
	}
	for _, addr := range c.ListenAddrs {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("config: invalid listen_addrs entry %q: %w", addr, err)
		}
	}
	for _, addr := range c.Bootnodes {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("config: invalid bootnodes entry %q: %w", addr, err)
		}
	}
	return nil
}

// Resolved is Config after defaults have been applied and its string/path
// fields parsed into the concrete types the rest of the node consumes.
type Resolved struct {
	Network        *NetworkSpec
	ListenAddrs    []ma.Multiaddr
	Bootnodes      []ma.Multiaddr
	NodeType       identity.NodeType
	Identity       IdentityMode
	ManageInterval Duration
	Kademlia       kademlia.Config
	Accounting     accounting.Config
}

// Resolve validates cfg and merges it over the package defaults, parsing
// listen/bootnode addresses and picking the named NetworkSpec.
func (c Config) Resolve() (*Resolved, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var spec *NetworkSpec
	switch c.Network {
	case "", "mainnet":
		spec = Mainnet()
	case "testnet":
		spec = Testnet()
	case "dev":
		spec = Dev(c.DevNetworkID)
	default:
		return nil, fmt.Errorf("config: unknown network %q", c.Network)
	}

	listenAddrs, err := parseMultiaddrs(c.ListenAddrs)
	if err != nil {
		return nil, fmt.Errorf("config: listen_addrs: %w", err)
	}
	bootnodes, err := parseMultiaddrs(c.Bootnodes)
	if err != nil {
		return nil, fmt.Errorf("config: bootnodes: %w", err)
	}
	if len(bootnodes) == 0 {
		bootnodes = spec.Bootnodes
	}

	kadCfg := kademlia.DefaultConfig()
	if c.Watermarks.LowWatermark != 0 {
		kadCfg.LowWatermark = c.Watermarks.LowWatermark
	}
	if c.Watermarks.SaturationPeers != 0 {
		kadCfg.SaturationPeers = c.Watermarks.SaturationPeers
	}
	if c.Watermarks.HighWatermark != 0 {
		kadCfg.HighWatermark = c.Watermarks.HighWatermark
	}
	if c.Watermarks.ClientReservedSlots != 0 {
		kadCfg.ClientReservedSlots = c.Watermarks.ClientReservedSlots
	}
	if c.Watermarks.MaxPendingConnections != 0 {
		kadCfg.MaxPendingConnections = c.Watermarks.MaxPendingConnections
	}
	if c.Watermarks.MaxConnectAttempts != 0 {
		kadCfg.MaxConnectAttempts = c.Watermarks.MaxConnectAttempts
	}
	if c.ManageInterval != 0 {
		kadCfg.ManageInterval = c.ManageInterval.Duration()
	}

	acctCfg := accounting.DefaultConfig()
	acctCfg.Mode = c.Accounting.Mode
	if c.Accounting.PaymentThreshold != 0 {
		acctCfg.PaymentThreshold = c.Accounting.PaymentThreshold
	}
	if c.Accounting.PaymentTolerancePercent != 0 {
		acctCfg.PaymentTolerancePercent = c.Accounting.PaymentTolerancePercent
	}
	if c.Accounting.BasePrice != 0 {
		acctCfg.BasePrice = c.Accounting.BasePrice
	}
	if c.Accounting.RefreshRate != 0 {
		acctCfg.RefreshRate = c.Accounting.RefreshRate
	}
	if c.Accounting.EarlyPaymentPercent != 0 {
		acctCfg.EarlyPaymentPercent = c.Accounting.EarlyPaymentPercent
	}
	if c.Accounting.LightFactor != 0 {
		acctCfg.LightFactor = c.Accounting.LightFactor
	}

	return &Resolved{
		Network:        spec,
		ListenAddrs:    listenAddrs,
		Bootnodes:      bootnodes,
		NodeType:       c.NodeType,
		Identity:       c.Identity,
		ManageInterval: c.ManageInterval,
		Kademlia:       kadCfg,
		Accounting:     acctCfg,
	}, nil
}

func parseMultiaddrs(addrs []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		parsed, err := ma.NewMultiaddr(a)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}
