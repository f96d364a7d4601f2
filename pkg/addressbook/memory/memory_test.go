package memory_test

import (
	"testing"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/addressbook"
	"github.com/ethersphere/beenode/pkg/addressbook/memory"
	"github.com/ethersphere/beenode/pkg/bzz"
	"github.com/ethersphere/beenode/pkg/crypto"
)

func TestMemoryStoreSaveGetRemove(t *testing.T) {
	store := memory.New()

	signer, err := crypto.GenerateEphemeralSigner()
	require.NoError(t, err)
	underlay, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/1634")
	require.NoError(t, err)
	var nonce [bzz.NonceSize]byte
	addr, err := bzz.NewSignedAddress(signer, []ma.Multiaddr{underlay}, nonce, 1, true, "")
	require.NoError(t, err)

	_, err = store.Get(addr.Overlay)
	require.ErrorIs(t, err, addressbook.ErrNotFound)

	require.NoError(t, store.Save(addr.Overlay, addressbook.Record{Address: *addr}))

	got, err := store.Get(addr.Overlay)
	require.NoError(t, err)
	require.True(t, got.Address.Overlay.Equal(addr.Overlay))

	count, err := store.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, store.Remove(addr.Overlay))
	_, err = store.Get(addr.Overlay)
	require.ErrorIs(t, err, addressbook.ErrNotFound)
}

func TestMemoryStoreSaveBatchAndLoadAll(t *testing.T) {
	store := memory.New()
	signer, err := crypto.GenerateEphemeralSigner()
	require.NoError(t, err)
	underlay, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/1634")
	require.NoError(t, err)
	var nonce [bzz.NonceSize]byte
	addr, err := bzz.NewSignedAddress(signer, []ma.Multiaddr{underlay}, nonce, 1, true, "")
	require.NoError(t, err)

	require.NoError(t, store.SaveBatch(map[string]addressbook.Record{
		addr.Overlay.String(): {Address: *addr},
	}))

	all, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
}
