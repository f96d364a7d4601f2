package accounting

// Mode selects which settlement sub-protocols back the accounting layer
// (spec.md §6, "accounting_mode ∈ {None, Pseudosettle, Swap, Both}").
type Mode int

const (
	ModeNone Mode = iota
	ModePseudosettle
	ModeSwap
	ModeBoth
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModePseudosettle:
		return "pseudosettle"
	case ModeSwap:
		return "swap"
	case ModeBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Config carries the per-network accounting parameters named in
// spec.md §6 and §4.6.
type Config struct {
	Mode Mode

	// PaymentThreshold is the debt level, in accounting units, that
	// triggers settlement.
	PaymentThreshold uint64
	// PaymentTolerancePercent widens PaymentThreshold into
	// DisconnectThreshold.
	PaymentTolerancePercent uint64
	// BasePrice is the per-network price constant chunk pricing scales
	// from (spec.md §4.6).
	BasePrice uint64
	// RefreshRate is carried through configuration only: neither this
	// package nor pkg/settlement/pseudosettle reads it, and no
	// time-allowance refresh takes place.
	RefreshRate uint64
	// EarlyPaymentPercent gates when a soft (pseudosettle) settlement
	// round starts, relative to the peer's announced threshold.
	EarlyPaymentPercent uint64
	// LightFactor divides every threshold for peers that declared
	// themselves light nodes at handshake time (spec.md §4.6, default 10).
	LightFactor uint64
}

// DefaultConfig mirrors the scenario constants used in spec.md §8's S4:
// payment_threshold=10_000 AU, tolerance=25%, base_price=100 AU/PO-unit.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModePseudosettle,
		PaymentThreshold:        10_000,
		PaymentTolerancePercent: 25,
		BasePrice:               100,
		RefreshRate:             1_000,
		EarlyPaymentPercent:     50,
		LightFactor:             10,
	}
}

// DisconnectThreshold computes disconnect_threshold = payment_threshold *
// (100 + payment_tolerance_percent) / 100 (spec.md §4.6).
func (c Config) DisconnectThreshold() uint64 {
	return c.PaymentThreshold * (100 + c.PaymentTolerancePercent) / 100
}
