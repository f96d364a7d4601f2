package crypto

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// LoadOrCreatePersistentSigner opens the encrypted keystore file at path,
// decrypting it with password. If no file exists at path, a new secp256k1
// key is generated, encrypted with password, and written with file mode
// 0600 (spec.md §6, "File mode 0600 on POSIX").
//
// Keystore decryption or generation failure is a Fatal-class error per
// spec.md §7: the caller should abort node start-up.
func LoadOrCreatePersistentSigner(path, password string) (Signer, error) {
	if _, err := os.Stat(path); err == nil {
		return loadPersistentSigner(path, password)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat keystore %s: %w", path, err)
	}
	return createPersistentSigner(path, password)
}

func loadPersistentSigner(path, password string) (Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore %s: %w", path, err)
	}
	key, err := keystore.DecryptKey(data, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore %s: %w", path, err)
	}
	return &privateKeySigner{key: key.PrivateKey}, nil
}

func createPersistentSigner(path, password string) (Signer, error) {
	signer, err := GenerateEphemeralSigner()
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}
	pk := signer.(*privateKeySigner).key

	addr, err := signer.EthereumAddress()
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}

	key := &keystore.Key{
		Address:    common.BytesToAddress(addr[:]),
		PrivateKey: pk,
	}
	data, err := keystore.EncryptKey(key, password, keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return nil, fmt.Errorf("encrypt keystore: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create keystore directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write keystore %s: %w", path, err)
	}
	return signer, nil
}
