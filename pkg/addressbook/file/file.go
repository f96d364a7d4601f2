// Package file implements a JSON, afero-backed addressbook.Interface:
// every record is re-marshaled and the whole file rewritten on Flush,
// trading write amplification for a trivially-correct on-disk format
// (spec.md §4.5, "Storage format: caller's choice").
package file

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/ethersphere/beenode/pkg/addressbook"
	"github.com/ethersphere/beenode/pkg/bzz"
	"github.com/ethersphere/beenode/pkg/crypto"
	"github.com/ethersphere/beenode/pkg/swarm"
)

// recordDTO is the JSON-on-disk shape of one addressbook.Record: every
// field bzz.ParseAndValidate needs to re-validate the record on load,
// plus the bookkeeping fields.
type recordDTO struct {
	Overlay         string    `json:"overlay"`
	Underlays       []string  `json:"underlays"`
	Signature       string    `json:"signature"`
	Nonce           string    `json:"nonce"`
	EthereumAddress string    `json:"ethereum_address"`
	FullNode        bool      `json:"full_node"`
	WelcomeMessage  string    `json:"welcome_message"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	Score           float64   `json:"score"`
	FailedAttempts  uint32    `json:"failed_attempts"`
	BanReason       string    `json:"ban_reason,omitempty"`
	BannedUntil     time.Time `json:"banned_until,omitempty"`
}

// Store is a file-backed addressbook.Interface. It buffers writes in
// memory and persists the full record set on Flush.
type Store struct {
	fs   afero.Fs
	path string

	mu      sync.Mutex
	records map[string]addressbook.Record
	dirty   bool
}

// New opens (or initializes) a Store backed by path on fs. Existing
// records are loaded immediately; malformed records are skipped.
func New(fs afero.Fs, path string) (*Store, error) {
	s := &Store{fs: fs, path: path, records: make(map[string]addressbook.Record)}
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("addressbook: stat %s: %w", path, err)
	}
	if !exists {
		return s, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("addressbook: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	var dtos map[string]recordDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("addressbook: parse %s: %w", path, err)
	}
	for key, dto := range dtos {
		rec, err := dtoToRecord(dto)
		if err != nil {
			continue
		}
		s.records[key] = rec
	}
	return s, nil
}

func (s *Store) LoadAll() (map[string]addressbook.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]addressbook.Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

func (s *Store) Save(overlay swarm.Address, rec addressbook.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[overlay.String()] = rec
	s.dirty = true
	return nil
}

func (s *Store) SaveBatch(records map[string]addressbook.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range records {
		s.records[k] = v
	}
	s.dirty = true
	return nil
}

func (s *Store) Remove(overlay swarm.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, overlay.String())
	s.dirty = true
	return nil
}

func (s *Store) Get(overlay swarm.Address) (addressbook.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[overlay.String()]
	if !ok {
		return addressbook.Record{}, addressbook.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]addressbook.Record)
	s.dirty = true
	return nil
}

// Flush rewrites the backing file with the current record set, if any
// writes occurred since the last Flush.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	dtos := make(map[string]recordDTO, len(s.records))
	for k, rec := range s.records {
		dtos[k] = recordToDTO(rec)
	}
	data, err := json.MarshalIndent(dtos, "", "  ")
	if err != nil {
		return fmt.Errorf("addressbook: marshal: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0o600); err != nil {
		return fmt.Errorf("addressbook: write %s: %w", s.path, err)
	}
	s.dirty = false
	return nil
}

func recordToDTO(rec addressbook.Record) recordDTO {
	underlays := make([]string, len(rec.Address.Underlays))
	for i, u := range rec.Address.Underlays {
		underlays[i] = u.String()
	}
	return recordDTO{
		Overlay:         rec.Address.Overlay.String(),
		Underlays:       underlays,
		Signature:       hexEncode(rec.Address.Signature[:]),
		Nonce:           hexEncode(rec.Address.Nonce[:]),
		EthereumAddress: hexEncode(rec.Address.EthereumAddress[:]),
		FullNode:        rec.Address.FullNode,
		WelcomeMessage:  rec.Address.WelcomeMessage,
		FirstSeen:       rec.FirstSeen,
		LastSeen:        rec.LastSeen,
		Score:           rec.Score,
		FailedAttempts:  rec.FailedAttempts,
		BanReason:       rec.BanReason,
		BannedUntil:     rec.BannedUntil,
	}
}

func dtoToRecord(dto recordDTO) (addressbook.Record, error) {
	overlay, err := swarm.ParseHexAddress(dto.Overlay)
	if err != nil {
		return addressbook.Record{}, err
	}
	underlays := make([]ma.Multiaddr, 0, len(dto.Underlays))
	for _, u := range dto.Underlays {
		addr, err := ma.NewMultiaddr(u)
		if err != nil {
			return addressbook.Record{}, err
		}
		underlays = append(underlays, addr)
	}
	sig, err := hexDecodeFixed(dto.Signature, crypto.SignatureLength)
	if err != nil {
		return addressbook.Record{}, err
	}
	nonce, err := hexDecodeFixed(dto.Nonce, bzz.NonceSize)
	if err != nil {
		return addressbook.Record{}, err
	}
	ethAddr, err := hexDecodeFixed(dto.EthereumAddress, crypto.AddressLength)
	if err != nil {
		return addressbook.Record{}, err
	}

	addr := bzz.Address{
		Overlay:        overlay,
		Underlays:      underlays,
		FullNode:       dto.FullNode,
		WelcomeMessage: dto.WelcomeMessage,
	}
	copy(addr.Signature[:], sig)
	copy(addr.Nonce[:], nonce)
	copy(addr.EthereumAddress[:], ethAddr)

	return addressbook.Record{
		Address:        addr,
		FirstSeen:      dto.FirstSeen,
		LastSeen:       dto.LastSeen,
		Score:          dto.Score,
		FailedAttempts: dto.FailedAttempts,
		BanReason:      dto.BanReason,
		BannedUntil:    dto.BannedUntil,
	}, nil
}
