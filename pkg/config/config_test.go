package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/accounting"
	"github.com/ethersphere/beenode/pkg/config"
	"github.com/ethersphere/beenode/pkg/identity"
)

func TestLoadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	original := config.Config{
		Network:     "testnet",
		ListenAddrs: []string{"/ip4/0.0.0.0/tcp/1634"},
		NodeType:    identity.Client,
		Identity:    config.IdentityMode{Ephemeral: true},
		Accounting:  config.AccountingParams{Mode: accounting.ModePseudosettle},
	}
	require.NoError(t, config.WriteFile(path, original))

	loaded, err := config.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, original.Network, loaded.Network)
	require.Equal(t, original.NodeType, loaded.NodeType)
	require.Equal(t, original.Identity, loaded.Identity)
	require.Equal(t, original.Accounting.Mode, loaded.Accounting.Mode)
}

func TestValidateRejectsEphemeralStorer(t *testing.T) {
	cfg := config.Config{
		NodeType: identity.Storer,
		Identity: config.IdentityMode{Ephemeral: true},
	}
	require.ErrorIs(t, cfg.Validate(), identity.ErrStorerMustBePersistent)
}

func TestValidateRejectsMalformedListenAddr(t *testing.T) {
	cfg := config.Config{ListenAddrs: []string{"not-a-multiaddr"}}
	require.Error(t, cfg.Validate())
}

func TestResolveAppliesDefaultsAndNetworkBootnodes(t *testing.T) {
	cfg := config.Config{Network: "mainnet"}
	resolved, err := cfg.Resolve()
	require.NoError(t, err)

	require.Equal(t, config.Mainnet(), resolved.Network)
	require.NotEmpty(t, resolved.Bootnodes)
	require.Equal(t, 3, resolved.Kademlia.LowWatermark)
	require.Equal(t, uint64(10_000), resolved.Accounting.PaymentThreshold)
}

func TestResolveOverridesDefaults(t *testing.T) {
	cfg := config.Config{
		Network: "dev",
		Watermarks: config.Watermarks{
			LowWatermark:  1,
			HighWatermark: 4,
		},
		Accounting: config.AccountingParams{
			Mode:             accounting.ModeSwap,
			PaymentThreshold: 500,
		},
	}
	resolved, err := cfg.Resolve()
	require.NoError(t, err)

	require.Equal(t, 1, resolved.Kademlia.LowWatermark)
	require.Equal(t, 4, resolved.Kademlia.HighWatermark)
	require.Equal(t, accounting.ModeSwap, resolved.Accounting.Mode)
	require.Equal(t, uint64(500), resolved.Accounting.PaymentThreshold)
}

func TestResolveRejectsUnknownNetwork(t *testing.T) {
	_, err := config.Config{Network: "moonnet"}.Resolve()
	require.Error(t, err)
}
