package identity_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/identity"
)

func TestEphemeralRejectsStorer(t *testing.T) {
	_, err := identity.Ephemeral(identity.Storer, identity.Config{NetworkID: 1})
	require.ErrorIs(t, err, identity.ErrStorerMustBePersistent)
}

func TestEphemeralBootnodeDerivesOverlay(t *testing.T) {
	id, err := identity.Ephemeral(identity.Bootnode, identity.Config{NetworkID: 1, FullNode: true})
	require.NoError(t, err)
	require.Len(t, id.OverlayAddress().Bytes(), 32)
}

func TestPersistentRoundTripsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	keystorePath := filepath.Join(dir, "keystore.json")
	noncePath := filepath.Join(dir, "nonce")

	cfg := identity.Config{NetworkID: 7, FullNode: true, WelcomeMessage: "hi"}

	first, err := identity.Persistent(keystorePath, "pw", identity.FileNonceStore{Path: noncePath}, cfg)
	require.NoError(t, err)

	second, err := identity.Persistent(keystorePath, "pw", identity.FileNonceStore{Path: noncePath}, cfg)
	require.NoError(t, err)

	require.True(t, first.OverlayAddress().Equal(second.OverlayAddress()))
	require.Equal(t, first.EthereumAddress(), second.EthereumAddress())
	require.Equal(t, first.Nonce(), second.Nonce())
}

func TestPersistentStorerIsAccepted(t *testing.T) {
	dir := t.TempDir()
	_, err := identity.Persistent(
		filepath.Join(dir, "keystore.json"), "pw",
		identity.FileNonceStore{Path: filepath.Join(dir, "nonce")},
		identity.Config{NetworkID: 1, FullNode: true},
	)
	require.NoError(t, err)
}
