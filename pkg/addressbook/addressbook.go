// Package addressbook persists validated peer records and their
// connection history across restarts (spec.md §4.5). The core specifies
// only the operational contract; storage layout is implementation
// defined, provided by the memory and file subpackages.
package addressbook

import (
	"errors"
	"time"

	"github.com/ethersphere/beenode/pkg/bzz"
	"github.com/ethersphere/beenode/pkg/swarm"
)

// ErrNotFound is returned by Get when no record exists for an overlay.
var ErrNotFound = errors.New("addressbook: record not found")

// Record is everything persisted for one peer: the full validated
// address (so the record can be re-validated on load) plus bookkeeping
// (spec.md §6, "Persisted peer-store record").
type Record struct {
	Address        bzz.Address
	FirstSeen      time.Time
	LastSeen       time.Time
	Score          float64
	FailedAttempts uint32
	BanReason      string
	BannedUntil    time.Time
}

// Banned reports whether this record is currently under a ban.
func (r Record) Banned(now time.Time) bool {
	return r.BanReason != "" && now.Before(r.BannedUntil)
}

// Interface is the thread-safe peer-store contract (spec.md §4.5).
// Batch saves coalesce writes; Flush is a commit barrier invoked at
// shutdown and after consumer bursts.
type Interface interface {
	// LoadAll returns every persisted record, keyed by overlay.
	LoadAll() (map[string]Record, error)
	// Save upserts one record.
	Save(overlay swarm.Address, rec Record) error
	// SaveBatch upserts many records in one call.
	SaveBatch(records map[string]Record) error
	// Remove deletes the record for overlay, if present.
	Remove(overlay swarm.Address) error
	// Get returns the record for overlay, or ErrNotFound.
	Get(overlay swarm.Address) (Record, error)
	// Count returns the number of persisted records.
	Count() (int, error)
	// Clear deletes every record.
	Clear() error
	// Flush commits any buffered writes to durable storage.
	Flush() error
}
