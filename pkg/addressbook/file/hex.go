package file

import (
	"encoding/hex"
	"fmt"
)

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func hexDecodeFixed(s string, n int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(b) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(b))
	}
	return b, nil
}
