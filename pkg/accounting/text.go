package accounting

import "fmt"

// MarshalText implements encoding.TextMarshaler, letting Mode appear as a
// bare string in TOML/JSON configuration (spec.md §6, "accounting_mode ∈
// {None, Pseudosettle, Swap, Both}").
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*m = ModeNone
	case "pseudosettle":
		*m = ModePseudosettle
	case "swap":
		*m = ModeSwap
	case "both":
		*m = ModeBoth
	default:
		return fmt.Errorf("accounting: unknown mode %q", text)
	}
	return nil
}
