package bzz_test

import (
	"testing"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/bzz"
	"github.com/ethersphere/beenode/pkg/crypto"
	"github.com/ethersphere/beenode/pkg/swarm"
)

func newTestUnderlays(t *testing.T) []ma.Multiaddr {
	t.Helper()
	addrs, err := p2pParse([]string{"/ip4/127.0.0.1/tcp/1634"})
	require.NoError(t, err)
	return addrs
}

func p2pParse(s []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(s))
	for _, one := range s {
		a, err := ma.NewMultiaddr(one)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func TestNewSignedAddressRoundTrips(t *testing.T) {
	signer, err := crypto.GenerateEphemeralSigner()
	require.NoError(t, err)

	underlays := newTestUnderlays(t)
	var nonce [bzz.NonceSize]byte
	nonce[0] = 7

	addr, err := bzz.NewSignedAddress(signer, underlays, nonce, 1, true, "hello")
	require.NoError(t, err)
	require.False(t, addr.Overlay.IsZero())

	validated, err := bzz.ParseAndValidate(addr.Overlay, addr.Underlays, addr.Signature, addr.Nonce, addr.FullNode, addr.WelcomeMessage, 1)
	require.NoError(t, err)
	require.Equal(t, addr.EthereumAddress, validated.EthereumAddress)
	require.True(t, addr.Overlay.Equal(validated.Overlay))
}

func TestParseAndValidateRejectsWrongNetworkID(t *testing.T) {
	signer, err := crypto.GenerateEphemeralSigner()
	require.NoError(t, err)

	underlays := newTestUnderlays(t)
	var nonce [bzz.NonceSize]byte

	addr, err := bzz.NewSignedAddress(signer, underlays, nonce, 1, true, "")
	require.NoError(t, err)

	_, err = bzz.ParseAndValidate(addr.Overlay, addr.Underlays, addr.Signature, addr.Nonce, addr.FullNode, addr.WelcomeMessage, 2)
	require.Error(t, err)
}

func TestParseAndValidateRejectsTamperedOverlay(t *testing.T) {
	signer, err := crypto.GenerateEphemeralSigner()
	require.NoError(t, err)

	underlays := newTestUnderlays(t)
	var nonce [bzz.NonceSize]byte

	addr, err := bzz.NewSignedAddress(signer, underlays, nonce, 1, true, "")
	require.NoError(t, err)

	tampered := addr.Overlay.Bytes()
	tampered[0] ^= 0xff
	other := swarm.MustNewAddress(tampered)

	_, err = bzz.ParseAndValidate(other, addr.Underlays, addr.Signature, addr.Nonce, addr.FullNode, addr.WelcomeMessage, 1)
	require.ErrorIs(t, err, bzz.ErrOverlayMismatch)
}

func TestNewSignedAddressRejectsOverlongWelcome(t *testing.T) {
	signer, err := crypto.GenerateEphemeralSigner()
	require.NoError(t, err)

	underlays := newTestUnderlays(t)
	var nonce [bzz.NonceSize]byte

	long := make([]byte, bzz.MaxWelcomeMessageLength+1)
	_, err = bzz.NewSignedAddress(signer, underlays, nonce, 1, true, string(long))
	require.ErrorIs(t, err, bzz.ErrWelcomeMessageTooLong)
}
