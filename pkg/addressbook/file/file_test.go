package file_test

import (
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/ethersphere/beenode/pkg/addressbook"
	"github.com/ethersphere/beenode/pkg/addressbook/file"
	"github.com/ethersphere/beenode/pkg/bzz"
	"github.com/ethersphere/beenode/pkg/crypto"
)

func newSignedAddress(t *testing.T) *bzz.Address {
	t.Helper()
	signer, err := crypto.GenerateEphemeralSigner()
	require.NoError(t, err)
	underlay, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/1634")
	require.NoError(t, err)
	var nonce [bzz.NonceSize]byte
	addr, err := bzz.NewSignedAddress(signer, []ma.Multiaddr{underlay}, nonce, 1, true, "")
	require.NoError(t, err)
	return addr
}

func TestFileStorePersistsAcrossReload(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/data/addressbook.json"

	store, err := file.New(fs, path)
	require.NoError(t, err)

	addr := newSignedAddress(t)
	rec := addressbook.Record{Address: *addr, FirstSeen: time.Unix(1, 0), LastSeen: time.Unix(2, 0), Score: 0.5}

	require.NoError(t, store.Save(addr.Overlay, rec))
	require.NoError(t, store.Flush())

	reopened, err := file.New(fs, path)
	require.NoError(t, err)

	got, err := reopened.Get(addr.Overlay)
	require.NoError(t, err)
	require.True(t, got.Address.Overlay.Equal(addr.Overlay))
	require.Equal(t, addr.EthereumAddress, got.Address.EthereumAddress)
	require.Equal(t, 0.5, got.Score)
}

func TestFileStoreRemoveAndClear(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := file.New(fs, "/data/addressbook.json")
	require.NoError(t, err)

	addr := newSignedAddress(t)
	rec := addressbook.Record{Address: *addr}
	require.NoError(t, store.Save(addr.Overlay, rec))

	count, err := store.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, store.Remove(addr.Overlay))
	count, err = store.Count()
	require.NoError(t, err)
	require.Equal(t, 0, count)

	require.NoError(t, store.Save(addr.Overlay, rec))
	require.NoError(t, store.Clear())
	count, err = store.Count()
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestFlushIsNoopWithoutWrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/data/addressbook.json"
	store, err := file.New(fs, path)
	require.NoError(t, err)
	require.NoError(t, store.Flush())

	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	require.False(t, exists)
}
