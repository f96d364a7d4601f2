package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethersphere/beenode/pkg/bzz"
)

// NonceStore loads a persistent identity's nonce, generating and
// persisting one on first use (spec.md §4.1, "persistent identities
// store ... the nonce in a side file").
type NonceStore interface {
	LoadOrCreate() ([bzz.NonceSize]byte, error)
}

// FileNonceStore persists the nonce as hex text in a single file,
// alongside the keystore (spec.md §4.1).
type FileNonceStore struct {
	Path string
}

func (s FileNonceStore) LoadOrCreate() ([bzz.NonceSize]byte, error) {
	var nonce [bzz.NonceSize]byte

	data, err := os.ReadFile(s.Path)
	if err == nil {
		decoded, decodeErr := hex.DecodeString(string(data))
		if decodeErr != nil || len(decoded) != bzz.NonceSize {
			return nonce, fmt.Errorf("identity: malformed nonce file %s", s.Path)
		}
		copy(nonce[:], decoded)
		return nonce, nil
	}
	if !os.IsNotExist(err) {
		return nonce, fmt.Errorf("identity: read nonce file %s: %w", s.Path, err)
	}

	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, fmt.Errorf("identity: generate nonce: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return nonce, fmt.Errorf("identity: create nonce directory: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(hex.EncodeToString(nonce[:])), 0o600); err != nil {
		return nonce, fmt.Errorf("identity: write nonce file %s: %w", s.Path, err)
	}
	return nonce, nil
}
