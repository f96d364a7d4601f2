// Package memory implements an in-memory addressbook.Interface, used in
// tests and for ephemeral nodes that do not persist peer state across
// restarts.
package memory

import (
	"sync"

	"github.com/ethersphere/beenode/pkg/addressbook"
	"github.com/ethersphere/beenode/pkg/swarm"
)

type store struct {
	mu      sync.RWMutex
	records map[string]addressbook.Record
}

// New returns an empty in-memory addressbook.
func New() addressbook.Interface {
	return &store{records: make(map[string]addressbook.Record)}
}

func (s *store) LoadAll() (map[string]addressbook.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]addressbook.Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

func (s *store) Save(overlay swarm.Address, rec addressbook.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[overlay.String()] = rec
	return nil
}

func (s *store) SaveBatch(records map[string]addressbook.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range records {
		s.records[k] = v
	}
	return nil
}

func (s *store) Remove(overlay swarm.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, overlay.String())
	return nil
}

func (s *store) Get(overlay swarm.Address) (addressbook.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[overlay.String()]
	if !ok {
		return addressbook.Record{}, addressbook.ErrNotFound
	}
	return rec, nil
}

func (s *store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]addressbook.Record)
	return nil
}

func (s *store) Flush() error {
	return nil
}
