package accounting

import "github.com/ethersphere/beenode/pkg/swarm"

// Price computes the per-chunk cost in accounting units for a chunk at
// the given proximity order to the peer supplying (or requesting) it:
// (MAX_PO − proximity + 1) * base_price, so chunks addressed closer to
// the requester are cheaper (spec.md §4.6).
func Price(basePrice uint64, proximity uint8) uint64 {
	if proximity > swarm.MaxPO {
		proximity = swarm.MaxPO
	}
	return uint64(swarm.MaxPO-proximity+1) * basePrice
}
